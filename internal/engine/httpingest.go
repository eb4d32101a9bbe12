package engine

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/aircast/coordinator/internal/coreerrors"
)

// enqueueHTTP submits audio bytes over the engine's alternate ingestion
// port: HTTP PUT /<slot> with Content-Type audio/mpeg (§6). Preferred over
// the control port when configured, since it avoids control-plane
// interleaving.
func (a *Adapter) enqueueHTTP(ctx context.Context, slot string, body []byte) error {
	url := fmt.Sprintf("%s/%s", a.cfg.IngestHTTPBase, slot)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build ingest request: %v", coreerrors.ErrEngineUnavailable, err)
	}
	req.Header.Set("Content-Type", "audio/mpeg")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", coreerrors.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusForbidden:
		return coreerrors.ErrEngineRejected
	default:
		return fmt.Errorf("%w: ingest returned %d", coreerrors.ErrEngineUnavailable, resp.StatusCode)
	}
}
