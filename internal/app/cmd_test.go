package app

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRootCommand_RegistersSubcommands(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})

	for _, name := range []Command{CommandServe, CommandWorker, CommandMigrate, CommandSeed, CommandHealthcheck} {
		cmd, _, err := root.Find([]string{string(name)})
		if err != nil {
			t.Errorf("Find(%q) error = %v", name, err)
			continue
		}
		if cmd.Name() != string(name) {
			t.Errorf("Find(%q) = %q", name, cmd.Name())
		}
	}
}

func TestRun_UnknownCommandIsError(t *testing.T) {
	err := Run(context.Background(), &bytes.Buffer{}, []string{"fetch"})
	if err == nil {
		t.Fatal("Run(fetch) should fail")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("error = %v, want unknown command", err)
	}
}

func TestRun_MissingEnvFailsBeforeConnecting(t *testing.T) {
	clearEnv(t)

	for _, args := range [][]string{{}, {"serve"}, {"worker"}, {"migrate"}, {"seed"}} {
		t.Run(strings.Join(append([]string{"root"}, args...), " "), func(t *testing.T) {
			err := Run(context.Background(), &bytes.Buffer{}, args)
			if err == nil {
				t.Fatal("Run with missing env should return error")
			}
			if !strings.Contains(err.Error(), "failed to load config") {
				t.Errorf("error = %v, want config error", err)
			}
		})
	}
}

func TestRun_Healthcheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"healthy", http.StatusOK, false},
		{"unhealthy", http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path = %q, want /health", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
			if err != nil {
				t.Fatalf("SplitHostPort: %v", err)
			}
			clearEnv(t)
			t.Setenv("SERVER_PORT", port)

			err = Run(context.Background(), &bytes.Buffer{}, []string{"healthcheck"})
			if (err != nil) != tt.wantErr {
				t.Errorf("Run(healthcheck) error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHealthcheckPort_Default(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	if got := healthcheckPort(); got != "8080" {
		t.Errorf("healthcheckPort() = %q, want 8080", got)
	}
}

func TestRun_WorkerRejectsInvalidScheduleBeforeConnecting(t *testing.T) {
	setTestEnv(t)
	t.Setenv("SESSION_CLEANUP_SCHEDULE", "sometimes")

	err := Run(context.Background(), &bytes.Buffer{}, []string{"worker"})
	if err == nil || !strings.Contains(err.Error(), "invalid cleanup schedule") {
		t.Errorf("error = %v, want invalid schedule", err)
	}
}
