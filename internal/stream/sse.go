package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Source is a live connection to a server-push event stream. The read
// loop drives it with Next/Current/Err; Close is synchronous and safe to
// call at any time, from any goroutine, any number of times.
type Source struct {
	resp    *http.Response
	reader  *bufio.Reader
	current Event

	mu     sync.Mutex
	closed bool
	err    error

	closeOnce sync.Once
}

// Open connects to the given stream URL. The request carries the SSE
// accept header; a non-200 response is a transport error.
func Open(ctx context.Context, client *http.Client, url string, header http.Header) (*Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building stream request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("opening stream: unexpected status %d", resp.StatusCode)
	}

	return &Source{
		resp:   resp,
		reader: bufio.NewReader(resp.Body),
	}, nil
}

// Next reads frames until a complete event is assembled. It returns false
// when the stream ends; Err distinguishes a local close (nil) from a
// transport failure.
func (s *Source) Next() bool {
	var (
		eventType string
		data      strings.Builder
		id        uint64
		sawData   bool
	)

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.mu.Lock()
			if !s.closed && err != io.EOF {
				s.err = err
			} else if !s.closed && err == io.EOF {
				// Server closed without a done event: still a transport
				// error from the consumer's point of view.
				s.err = io.ErrUnexpectedEOF
			}
			s.mu.Unlock()
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !sawData && eventType == "" {
				continue
			}
			payload := data.String()
			payload = strings.TrimSuffix(payload, "\n")
			if eventType == "" {
				eventType = "message"
			}
			s.current = Event{Type: eventType, ID: id, Data: []byte(payload)}
			return true
		}

		if strings.HasPrefix(line, ":") {
			// Keep-alive comment (": ping").
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = value
		case "data":
			data.WriteString(value)
			data.WriteString("\n")
			sawData = true
		case "id":
			if n, err := strconv.ParseUint(value, 10, 64); err == nil {
				id = n
			}
		}
	}
}

// Current returns the event assembled by the last successful Next.
func (s *Source) Current() Event {
	return s.current
}

// Err returns the transport error that ended the stream, or nil after a
// local Close or a clean end.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears down the connection. Idempotent.
func (s *Source) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		_ = s.resp.Body.Close()
	})
}
