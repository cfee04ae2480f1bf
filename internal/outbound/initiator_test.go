package outbound

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/digiloans/voicebot/internal/callqueue"
	"github.com/digiloans/voicebot/internal/exotel"
)

func newExotelServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("To"); got != "+919876543210" {
			t.Errorf("To = %q", got)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newClient(baseURL string) *exotel.Client {
	return exotel.New(exotel.Config{
		AccountSID: "digiloans1",
		APIKey:     "key",
		APIToken:   "token",
		CallerID:   "08047112345",
		BaseURL:    baseURL,
	})
}

const okBody = `<?xml version="1.0" encoding="UTF-8"?>
<TwilioResponse><Call><Sid>c0ffee42</Sid><Status>in-progress</Status></Call></TwilioResponse>`

func TestInitiate(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantSID    string
		wantErr    bool
		wantPushed int
	}{
		{"success", http.StatusOK, okBody, "c0ffee42", false, 1},
		{"success without sid", http.StatusOK, `<TwilioResponse><Call></Call></TwilioResponse>`, exotel.UnknownCallSID, false, 1},
		{"upstream error", http.StatusForbidden, `{"error":"forbidden"}`, "", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := newExotelServer(t, tt.status, tt.body)
			reg := callqueue.New()
			in := New(Config{
				Placer:   newClient(srv.URL),
				Register: reg,
				Logger:   log.New(io.Discard, "", 0),
			})

			res, err := in.Initiate(context.Background(), Request{PhoneNumber: "+919876543210", CustomerName: "Ravi"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Initiate error = %v, wantErr %t", err, tt.wantErr)
			}
			if hits.Load() != 1 {
				t.Errorf("provider hit %d times, want 1", hits.Load())
			}
			if reg.Len() != tt.wantPushed {
				t.Fatalf("register has %d contexts, want %d", reg.Len(), tt.wantPushed)
			}
			if tt.wantErr {
				var upstream *exotel.UpstreamError
				if !errors.As(err, &upstream) || upstream.StatusCode != tt.status {
					t.Errorf("error = %v, want UpstreamError %d", err, tt.status)
				}
				return
			}
			if res.CallSID != tt.wantSID {
				t.Errorf("CallSID = %q, want %q", res.CallSID, tt.wantSID)
			}
			cc, _ := reg.Pop()
			if cc.PhoneNumber != "+919876543210" || cc.CustomerName != "Ravi" {
				t.Errorf("pushed %+v", cc)
			}
		})
	}
}

func TestInitiate_ConfigurationErrorBeforeNetwork(t *testing.T) {
	srv, hits := newExotelServer(t, http.StatusOK, okBody)
	reg := callqueue.New()
	in := New(Config{
		Placer:   exotel.New(exotel.Config{BaseURL: srv.URL, CallerID: "08047112345"}),
		Register: reg,
	})

	_, err := in.Initiate(context.Background(), Request{PhoneNumber: "+919876543210"})
	var cfgErr *exotel.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want ConfigurationError", err)
	}
	if len(cfgErr.Missing) != 3 {
		t.Errorf("missing = %v, want 3 entries", cfgErr.Missing)
	}
	if hits.Load() != 0 {
		t.Errorf("provider hit %d times, want 0", hits.Load())
	}
	if reg.Len() != 0 {
		t.Errorf("register has %d contexts, want 0", reg.Len())
	}
}

func TestInitiate_MissingPhoneNumber(t *testing.T) {
	in := New(Config{Placer: newClient("http://127.0.0.1:1"), Register: callqueue.New()})
	if _, err := in.Initiate(context.Background(), Request{CustomerName: "Ravi"}); !errors.Is(err, ErrMissingPhoneNumber) {
		t.Errorf("error = %v, want ErrMissingPhoneNumber", err)
	}
}

func TestInitiate_RateLimited(t *testing.T) {
	srv, hits := newExotelServer(t, http.StatusOK, okBody)
	reg := callqueue.New()
	in := New(Config{
		Placer:         newClient(srv.URL),
		Register:       reg,
		CallsPerMinute: 2,
	})

	req := Request{PhoneNumber: "+919876543210", CustomerName: "Ravi"}
	for i := 0; i < 2; i++ {
		if _, err := in.Initiate(context.Background(), req); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	if _, err := in.Initiate(context.Background(), req); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third call error = %v, want ErrRateLimited", err)
	}
	if hits.Load() != 2 {
		t.Errorf("provider hit %d times, want 2", hits.Load())
	}
	if in.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", in.Pending())
	}
}
