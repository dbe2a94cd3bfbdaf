package e2e

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"storemodel/internal/api"
	"storemodel/internal/format"
)

type systemUnderTest struct {
	BaseURL  string
	shutdown func()
}

func (s *systemUnderTest) Close() {
	if s.shutdown != nil {
		s.shutdown()
	}
}

// startSystemUnderTest returns the server to test against:
//   - STOREMODEL_SERVER_CMD: a command started with STOREMODEL_HTTP_ADDR and
//     STOREMODEL_JOURNAL_DIR set,
//   - STOREMODEL_URL: an already running server,
//   - otherwise an in-process server.
func startSystemUnderTest(t *testing.T) *systemUnderTest {
	t.Helper()

	if cmd := os.Getenv("STOREMODEL_SERVER_CMD"); cmd != "" {
		sut, err := startExternalServer(t, cmd)
		if err != nil {
			t.Fatalf("start external server: %v", err)
		}
		return sut
	}

	if url := os.Getenv("STOREMODEL_URL"); url != "" {
		t.Logf("STOREMODEL_URL set; using existing server at %s", url)
		return &systemUnderTest{BaseURL: url}
	}

	f, err := format.FromGeometry(format.DefaultGeometry())
	if err != nil {
		t.Fatalf("default format: %v", err)
	}
	srv := api.NewServer(api.Options{
		Format:     f,
		JournalDir: t.TempDir(),
		Logger:     zaptest.NewLogger(t),
	})
	hs := httptest.NewServer(srv)
	return &systemUnderTest{
		BaseURL: hs.URL,
		shutdown: func() {
			hs.Close()
			_ = srv.Close()
		},
	}
}

func startExternalServer(t *testing.T, cmdStr string) (*systemUnderTest, error) {
	t.Helper()

	journalDir, err := os.MkdirTemp("", "storemodel-e2e-journal-*")
	if err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	addr, err := freeAddr()
	if err != nil {
		return nil, fmt.Errorf("pick free addr: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("STOREMODEL_HTTP_ADDR=%s", addr),
		fmt.Sprintf("STOREMODEL_JOURNAL_DIR=%s", journalDir),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("cmd start: %w", err)
	}
	baseURL := "http://" + addr
	if err := waitForReady(baseURL, 10*time.Second); err != nil {
		_ = cmd.Process.Kill()
		cancel()
		return nil, fmt.Errorf("wait for ready: %w", err)
	}

	shutdown := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
		}
		cancel()
		_ = os.RemoveAll(journalDir)
	}
	return &systemUnderTest{BaseURL: baseURL, shutdown: shutdown}, nil
}

func waitForReady(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server at %s not ready after %s", baseURL, timeout)
}

func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return l.Addr().String(), nil
}
