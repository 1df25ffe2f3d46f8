package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// maxResponseBytes はIdPレスポンスとして読み込む最大サイズ。
const maxResponseBytes = 1 << 20

// retryPolicy はIdP呼び出しのタイムアウトと再試行の設定。
type retryPolicy struct {
	timeout    time.Duration // 1回の試行あたりのタイムアウト
	maxRetries int           // 初回以外の最大試行回数
	backoff    time.Duration // 初回の再試行までの待ち時間
}

// backoffFor はattempt回目（0始まり）の再試行前の待ち時間を返す。
// 初回backoff、以降2倍ずつ増加する。
func (p retryPolicy) backoffFor(attempt int) time.Duration {
	delay := p.backoff
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// rawResponse は読み込み済みのHTTPレスポンス。
type rawResponse struct {
	status int
	body   []byte
}

// isTimeout はエラーがタイムアウトによるものかを判定する。
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// doWithRetry はnewRequestで組み立てたリクエストを送信し、レスポンス全体を読み込んで返す。
// ネットワークエラーと5xxは再試行する。再試行を使い切った5xxはそのまま返す。
func doWithRetry(ctx context.Context, client *http.Client, policy retryPolicy, newRequest func(ctx context.Context) (*http.Request, error)) (*rawResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= policy.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(policy.backoffFor(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := doOnce(ctx, client, policy.timeout, newRequest)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		if resp.status >= 500 && attempt < policy.maxRetries {
			lastErr = fmt.Errorf("provider responded with status %d", resp.status)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func doOnce(ctx context.Context, client *http.Client, timeout time.Duration, newRequest func(ctx context.Context) (*http.Request, error)) (*rawResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := newRequest(attemptCtx)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}
	return &rawResponse{status: resp.StatusCode, body: body}, nil
}
