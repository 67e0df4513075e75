// Package exportimport implements the self-describing journal blob used
// for sneaker-net workflows between isolated and connected instances.
package exportimport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"frlproxy/core/internal/pkg/ptr"
	"frlproxy/core/internal/pkg/uid"
	"frlproxy/core/internal/store"
)

const schemaVersion = 1

type recordType string

const (
	recordHeader   recordType = "header"
	recordRequest  recordType = "request"
	recordResponse recordType = "response"
)

type headerRecord struct {
	Type          recordType `json:"type"`
	SchemaVersion int        `json:"schema_version"`
	OriginID      string     `json:"origin_id"`
	ExportedAt    time.Time  `json:"exported_at"`
}

type requestRecord struct {
	Type        recordType        `json:"type"`
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Fingerprint string            `json:"fingerprint"`
	ReceivedAt  time.Time         `json:"received_at"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Target      string            `json:"target"`
	Headers     map[string]string `json:"headers"`
	BodyBase64  string            `json:"body_base64"`
}

type responseRecord struct {
	Type        recordType        `json:"type"`
	RequestID   string            `json:"request_id"`
	ReceivedAt  time.Time         `json:"received_at"`
	Status      int               `json:"status"`
	Headers     map[string]string `json:"headers"`
	BodyBase64  string            `json:"body_base64"`
	IsCacheable bool              `json:"is_cacheable"`
}

// ExportPending serializes every PENDING StoredRequest (across both
// targets) as framed JSON lines: a header, then one request record per
// line.
func ExportPending(ctx context.Context, s *store.Store) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	if err := enc.Encode(headerRecord{
		Type: recordHeader, SchemaVersion: schemaVersion, OriginID: originID(), ExportedAt: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	for _, target := range []store.Target{store.TargetLicense, store.TargetLog} {
		pending, err := s.ListPending(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("list pending %s: %w", target, err)
		}
		for _, req := range pending {
			rec := requestRecord{
				Type: recordRequest, ID: req.ID, Kind: string(req.Kind), Fingerprint: req.Fingerprint,
				ReceivedAt: req.ReceivedAt, Method: req.Method, Path: req.Path, Target: string(req.Target),
				Headers: req.Headers, BodyBase64: base64.StdEncoding.EncodeToString(req.Body),
			}
			if err := enc.Encode(rec); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// ExportResponses serializes the StoredResponse for every FORWARDED
// request — the "export responses back" leg of a drain round-trip: a
// connected instance drains an imported journal, then ships the answers
// back to the isolated instance that originated them.
func ExportResponses(ctx context.Context, s *store.Store) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	if err := enc.Encode(headerRecord{
		Type: recordHeader, SchemaVersion: schemaVersion, OriginID: originID(), ExportedAt: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	forwarded, err := s.ListForwarded(ctx)
	if err != nil {
		return nil, fmt.Errorf("list forwarded: %w", err)
	}

	for _, req := range forwarded {
		resp, err := s.GetResponseByRequestID(ctx, req.ID)
		if err != nil {
			continue
		}
		rec := responseRecord{
			Type: recordResponse, RequestID: resp.RequestID, ReceivedAt: resp.ReceivedAt,
			Status: resp.Status, Headers: resp.Headers, BodyBase64: base64.StdEncoding.EncodeToString(resp.Body),
			IsCacheable: resp.IsCacheable,
		}
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Import applies a previously exported blob: request records are
// journaled as PENDING (skipping any id already present, so re-importing
// the same blob is a no-op), and response records are journaled and
// marked FORWARDED. Rejects blobs with a newer schema version than this
// build understands.
func Import(ctx context.Context, s *store.Store, blob []byte) (int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(blob))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	imported := 0
	sawHeader := false

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var probe struct {
			Type recordType `json:"type"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			return imported, fmt.Errorf("decode record: %w", err)
		}

		switch probe.Type {
		case recordHeader:
			var h headerRecord
			if err := json.Unmarshal(line, &h); err != nil {
				return imported, err
			}
			if h.SchemaVersion > schemaVersion {
				return imported, fmt.Errorf("blob schema version %d is newer than this build supports (%d)", h.SchemaVersion, schemaVersion)
			}
			sawHeader = true

		case recordRequest:
			var r requestRecord
			if err := json.Unmarshal(line, &r); err != nil {
				return imported, err
			}
			if existing, err := s.GetRequest(ctx, r.ID); err == nil && existing != nil {
				continue // already imported; idempotent
			}
			body, err := base64.StdEncoding.DecodeString(r.BodyBase64)
			if err != nil {
				return imported, fmt.Errorf("decode body for %s: %w", r.ID, err)
			}
			req := &store.StoredRequest{
				ID: r.ID, Kind: store.Kind(r.Kind), Fingerprint: r.Fingerprint, ReceivedAt: r.ReceivedAt,
				Body: body, Headers: r.Headers, Method: r.Method, Path: r.Path, Target: store.Target(r.Target),
				State: store.StatePending,
			}
			if err := s.SaveRequest(ctx, req); err != nil {
				return imported, fmt.Errorf("save imported request %s: %w", r.ID, err)
			}
			imported++

		case recordResponse:
			var r responseRecord
			if err := json.Unmarshal(line, &r); err != nil {
				return imported, err
			}
			if existing, err := s.GetResponseByRequestID(ctx, r.RequestID); err == nil && existing != nil {
				continue // already imported; idempotent
			}
			body, err := base64.StdEncoding.DecodeString(r.BodyBase64)
			if err != nil {
				return imported, fmt.Errorf("decode response body for %s: %w", r.RequestID, err)
			}
			resp := &store.StoredResponse{
				ID: r.RequestID + ":resp", RequestID: r.RequestID, ReceivedAt: r.ReceivedAt,
				Status: r.Status, Body: body, Headers: r.Headers, IsCacheable: r.IsCacheable,
			}
			if err := s.SaveResponse(ctx, resp); err != nil {
				return imported, fmt.Errorf("save imported response for %s: %w", r.RequestID, err)
			}
			if err := s.UpdateRequestState(ctx, r.RequestID, store.StateForwarded, 1, ptr.To(time.Now()), ""); err != nil {
				return imported, err
			}
			if r.IsCacheable {
				req, err := s.GetRequest(ctx, r.RequestID)
				if err == nil && req.Fingerprint != "" {
					_ = s.CacheStore(ctx, req.Fingerprint, resp.ID)
				}
			}
			imported++
		}
	}

	if !sawHeader {
		return imported, fmt.Errorf("blob missing header record")
	}
	return imported, scanner.Err()
}

// originID identifies the exporting instance. A fresh id is minted per
// export rather than persisted per instance, so two exports from the same
// proxy carry different origin_id values — sufficient for humans
// reconciling blobs by hand, since the header's purpose is distinguishing
// one export from another, not identifying a stable instance.
func originID() string {
	return uid.New()
}
