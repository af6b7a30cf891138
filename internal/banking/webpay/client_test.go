package webpay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tramites-digitales/pagos-api/internal/banking"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestCreatePayLink(t *testing.T) {
	t.Run("posts an encrypted chain and returns the url", func(t *testing.T) {
		bank := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			chain := r.PostFormValue("xml_encriptado")
			if chain == "" {
				t.Error("expected xml_encriptado form field")
			}

			client, _ := NewClient("", testKey, nil)
			plain, err := decryptChain(client.key, chain)
			if err != nil {
				t.Fatalf("decrypt request: %v", err)
			}
			if !strings.Contains(plain, "<monto>350.00</monto>") {
				t.Errorf("unexpected request payload: %s", plain)
			}
			if !strings.Contains(plain, "<pago_id>pago-1</pago_id>") {
				t.Errorf("unexpected request payload: %s", plain)
			}

			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(`<respuesta><url>https://banco.example.com/pagar/abc</url></respuesta>`))
		}))
		defer bank.Close()

		client, err := NewClient(bank.URL, testKey, bank.Client())
		if err != nil {
			t.Fatalf("new client: %v", err)
		}

		url, err := client.CreatePayLink(context.Background(), banking.PayLinkRequest{
			OrderID:       "pago-1",
			CitizenID:     "cliente-1",
			Email:         "persona@ejemplo.com",
			ServiceDetail: "ACTA DE NACIMIENTO",
			Amount:        decimal.RequireFromString("350"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if url != "https://banco.example.com/pagar/abc" {
			t.Errorf("got url %q", url)
		}
	})

	t.Run("bank error element becomes a gateway error", func(t *testing.T) {
		bank := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<respuesta><error>cuenta no habilitada</error></respuesta>`))
		}))
		defer bank.Close()

		client, _ := NewClient(bank.URL, testKey, bank.Client())
		_, err := client.CreatePayLink(context.Background(), banking.PayLinkRequest{OrderID: "pago-1"})
		if !errors.Is(err, banking.ErrGateway) {
			t.Fatalf("expected gateway error, got %v", err)
		}
		if !strings.Contains(err.Error(), "cuenta no habilitada") {
			t.Errorf("error should carry the bank cause, got %v", err)
		}
	})

	t.Run("non-200 status becomes a gateway error", func(t *testing.T) {
		bank := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer bank.Close()

		client, _ := NewClient(bank.URL, testKey, bank.Client())
		if _, err := client.CreatePayLink(context.Background(), banking.PayLinkRequest{}); !errors.Is(err, banking.ErrGateway) {
			t.Fatalf("expected gateway error, got %v", err)
		}
	})

	t.Run("unreachable bank becomes a gateway error", func(t *testing.T) {
		client, _ := NewClient("http://127.0.0.1:1", testKey, &http.Client{})
		if _, err := client.CreatePayLink(context.Background(), banking.PayLinkRequest{}); !errors.Is(err, banking.ErrGateway) {
			t.Fatalf("expected gateway error, got %v", err)
		}
	})
}

func TestDecryptResult(t *testing.T) {
	client, err := NewClient("", testKey, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	t.Run("round-trips a settlement", func(t *testing.T) {
		chain, err := EncodeResult(testKey, banking.Result{
			OrderID:      "9f3c2d2a-8a67-4a2e-9d1e-0a3b5c7d9e1f",
			ResponseCode: banking.ResponseApproved,
			Folio:        "F-2026-000123",
		})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}

		res, err := client.DecryptResult(context.Background(), chain)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.OrderID != "9f3c2d2a-8a67-4a2e-9d1e-0a3b5c7d9e1f" {
			t.Errorf("got order id %q", res.OrderID)
		}
		if !res.Approved() {
			t.Error("expected approved result")
		}
		if res.Folio != "F-2026-000123" {
			t.Errorf("got folio %q", res.Folio)
		}
		if !strings.Contains(res.XML, "<resultado>") {
			t.Errorf("verbatim XML not kept: %q", res.XML)
		}
	})

	t.Run("garbage chain becomes a gateway error", func(t *testing.T) {
		if _, err := client.DecryptResult(context.Background(), "no-es-base64!!"); !errors.Is(err, banking.ErrGateway) {
			t.Fatalf("expected gateway error, got %v", err)
		}
	})

	t.Run("valid chain with missing order id is rejected", func(t *testing.T) {
		chain, err := EncodeResult(testKey, banking.Result{ResponseCode: "denied"})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if _, err := client.DecryptResult(context.Background(), chain); !errors.Is(err, banking.ErrGateway) {
			t.Fatalf("expected gateway error, got %v", err)
		}
	})

	t.Run("tampered chain is rejected", func(t *testing.T) {
		chain, err := EncodeResult(testKey, banking.Result{OrderID: "x", ResponseCode: "denied"})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		tampered := chain[:len(chain)-8] + "AAAAAAA="
		if _, err := client.DecryptResult(context.Background(), tampered); !errors.Is(err, banking.ErrGateway) {
			t.Fatalf("expected gateway error, got %v", err)
		}
	})
}
