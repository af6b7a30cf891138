//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tramites-digitales/pagos-api/internal/banking"
	"github.com/tramites-digitales/pagos-api/internal/banking/webpay"
	"github.com/tramites-digitales/pagos-api/internal/catalog"
	"github.com/tramites-digitales/pagos-api/internal/clients"
	"github.com/tramites-digitales/pagos-api/internal/messaging"
	"github.com/tramites-digitales/pagos-api/internal/payments"
	"github.com/tramites-digitales/pagos-api/internal/receipts"
)

const bankKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func seedCatalog(t *testing.T, db *sql.DB) {
	t.Helper()

	statements := []string{
		`INSERT INTO distritos (clave, nombre, nombre_corto, es_distrito)
		 VALUES ('DTRC', 'DISTRITO DE TORREON', 'TORREON', TRUE)`,
		`INSERT INTO autoridades (distrito_id, clave, descripcion, descripcion_corta, es_jurisdiccional)
		 SELECT id, 'TRC-J1-FAM', 'JUZGADO PRIMERO FAMILIAR', 'J1 FAMILIAR', TRUE
		 FROM distritos WHERE clave = 'DTRC'`,
		`INSERT INTO pag_tramites_servicios (clave, descripcion, costo)
		 VALUES ('EXP-001', 'EXPEDICION DE COPIAS CERTIFICADAS', 150.00)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to seed catalog: %v", err)
		}
	}
}

// fakeBank always answers the same pay link, like the bank's sandbox.
func fakeBank(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostFormValue("xml_encriptado") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`<respuesta><url>https://banco.example.com/pagar/demo</url></respuesta>`))
	}))
}

func buildAPI(t *testing.T, db *sql.DB, bankURL string, publisher payments.Publisher) http.Handler {
	t.Helper()
	logger := slog.Default()

	gateway, err := webpay.NewClient(bankURL, bankKey, nil)
	if err != nil {
		t.Fatalf("failed to build gateway: %v", err)
	}

	catalogRepo := catalog.NewRepository(db)
	citizenRepo := clients.NewRepository(db)
	registry := clients.NewRegistry(citizenRepo, logger)
	orderRepo := payments.NewRepository(db)
	service := payments.NewService(catalogRepo, registry, orderRepo, gateway, publisher, logger)

	catalogHandler := catalog.NewHandler(catalogRepo, logger)
	citizenHandler := clients.NewHandler(citizenRepo, logger)
	paymentHandler := payments.NewHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v5/distritos", catalogHandler.HandleDistricts)
	mux.HandleFunc("GET /api/v5/distritos/{clave}", catalogHandler.HandleDistrict)
	mux.HandleFunc("GET /api/v5/autoridades", catalogHandler.HandleAuthorities)
	mux.HandleFunc("GET /api/v5/autoridades/{clave}", catalogHandler.HandleAuthority)
	mux.HandleFunc("GET /api/v5/pag_tramites_servicios", catalogHandler.HandleServices)
	mux.HandleFunc("GET /api/v5/pag_tramites_servicios/{clave}", catalogHandler.HandleService)
	mux.HandleFunc("GET /api/v5/cit_clientes/{email}", citizenHandler.HandleGet)
	mux.HandleFunc("POST /api/v5/pag_pagos/carro", paymentHandler.HandleOpenCart)
	mux.HandleFunc("POST /api/v5/pag_pagos/resultado", paymentHandler.HandleBankResult)
	mux.HandleFunc("GET /api/v5/pag_pagos/{id}", paymentHandler.HandleGet)
	return mux
}

func doJSON(t *testing.T, handler http.Handler, method, target, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: failed to decode envelope: %v", method, target, err)
	}
	return rec.Code, env
}

const cartBody = `{
	"nombres": "María José",
	"apellido_primero": "Ñañez",
	"curp": "XEXX010101HNEXXXA4",
	"email": "maria@example.com",
	"telefono": "871 123 4567",
	"autoridad_clave": "TRC-J1-FAM",
	"pag_tramite_servicio_clave": "EXP-001",
	"cantidad": 2
}`

func TestPaymentFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := sql.Open("postgres", pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedCatalog(t, db)

	bank := fakeBank(t)
	defer bank.Close()

	api := buildAPI(t, db, bank.URL, nil)

	code, env := doJSON(t, api, http.MethodPost, "/api/v5/pag_pagos/carro", cartBody)
	if code != http.StatusOK || !env.Success {
		t.Fatalf("carro: code=%d success=%v message=%q", code, env.Success, env.Message)
	}

	var cart struct {
		ID           string `json:"id"`
		URL          string `json:"url"`
		Total        string `json:"total"`
		DistrictCode string `json:"distrito_clave"`
	}
	if err := json.Unmarshal(env.Data, &cart); err != nil {
		t.Fatalf("failed to decode cart: %v", err)
	}
	if cart.URL != "https://banco.example.com/pagar/demo" {
		t.Errorf("url = %q", cart.URL)
	}
	if cart.Total != "300" {
		t.Errorf("total = %q, want 300", cart.Total)
	}
	if cart.DistrictCode != "DTRC" {
		t.Errorf("distrito = %q, want the authority's", cart.DistrictCode)
	}

	var estado string
	if err := db.QueryRow(`SELECT estado FROM pag_pagos WHERE id = $1`, cart.ID).Scan(&estado); err != nil {
		t.Fatalf("failed to read order: %v", err)
	}
	if estado != "SOLICITADO" {
		t.Fatalf("estado = %q, want SOLICITADO", estado)
	}

	chain, err := webpay.EncodeResult(bankKey, banking.Result{
		OrderID:      cart.ID,
		ResponseCode: banking.ResponseApproved,
		Folio:        "987654",
	})
	if err != nil {
		t.Fatalf("failed to forge settlement: %v", err)
	}

	resultBody, _ := json.Marshal(map[string]string{"xml_encriptado": chain})
	code, env = doJSON(t, api, http.MethodPost, "/api/v5/pag_pagos/resultado", string(resultBody))
	if code != http.StatusOK || !env.Success {
		t.Fatalf("resultado: code=%d success=%v message=%q", code, env.Success, env.Message)
	}

	var detail struct {
		State string `json:"estado"`
		Folio string `json:"folio"`
	}
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatalf("failed to decode detail: %v", err)
	}
	if detail.State != "PAGADO" || detail.Folio != "987654" {
		t.Fatalf("detail = %+v, want PAGADO/987654", detail)
	}

	// The same callback replayed must be rejected.
	code, env = doJSON(t, api, http.MethodPost, "/api/v5/pag_pagos/resultado", string(resultBody))
	if code != http.StatusOK || env.Success {
		t.Fatalf("replay: code=%d success=%v", code, env.Success)
	}
	if env.Message != "No es un pago solicitado al banco, ya fue procesado" {
		t.Errorf("replay message = %q", env.Message)
	}

	code, env = doJSON(t, api, http.MethodGet, "/api/v5/pag_pagos/"+cart.ID, "")
	if code != http.StatusOK || !env.Success {
		t.Fatalf("detalle: code=%d success=%v message=%q", code, env.Success, env.Message)
	}
}

func TestPaymentFlowDeclined(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := sql.Open("postgres", pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedCatalog(t, db)

	bank := fakeBank(t)
	defer bank.Close()

	api := buildAPI(t, db, bank.URL, nil)

	_, env := doJSON(t, api, http.MethodPost, "/api/v5/pag_pagos/carro", cartBody)
	if !env.Success {
		t.Fatalf("carro failed: %q", env.Message)
	}
	var cart struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &cart); err != nil {
		t.Fatalf("failed to decode cart: %v", err)
	}

	chain, err := webpay.EncodeResult(bankKey, banking.Result{
		OrderID:      cart.ID,
		ResponseCode: "denied",
	})
	if err != nil {
		t.Fatalf("failed to forge settlement: %v", err)
	}
	resultBody, _ := json.Marshal(map[string]string{"xml_encriptado": chain})

	_, env = doJSON(t, api, http.MethodPost, "/api/v5/pag_pagos/resultado", string(resultBody))
	if !env.Success {
		t.Fatalf("resultado failed: %q", env.Message)
	}

	var estado string
	if err := db.QueryRow(`SELECT estado FROM pag_pagos WHERE id = $1`, cart.ID).Scan(&estado); err != nil {
		t.Fatalf("failed to read order: %v", err)
	}
	if estado != "FALLIDO" {
		t.Fatalf("estado = %q, want FALLIDO", estado)
	}
}

func TestCatalogListings(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := sql.Open("postgres", pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedCatalog(t, db)

	bank := fakeBank(t)
	defer bank.Close()

	api := buildAPI(t, db, bank.URL, nil)

	code, env := doJSON(t, api, http.MethodGet, "/api/v5/distritos", "")
	if code != http.StatusOK || !env.Success {
		t.Fatalf("distritos: code=%d message=%q", code, env.Message)
	}

	var listing struct {
		Total int `json:"total"`
		Items []struct {
			Code string `json:"clave"`
		} `json:"items"`
	}
	if err := json.Unmarshal(env.Data, &listing); err != nil {
		t.Fatalf("failed to decode listing: %v", err)
	}
	// The ND placeholder is not a real district and must not be listed.
	if listing.Total != 1 || len(listing.Items) != 1 || listing.Items[0].Code != "DTRC" {
		t.Fatalf("listing = %+v, want only DTRC", listing)
	}

	code, env = doJSON(t, api, http.MethodGet, "/api/v5/autoridades?distrito_clave=DTRC", "")
	if code != http.StatusOK || !env.Success {
		t.Fatalf("autoridades: code=%d message=%q", code, env.Message)
	}
}

// Two carts opened at the same time for the same CURP must share one
// citizen row; the loser of the insert race retries on the unique
// violation and reuses the winner's row.
func TestConcurrentCartsSingleCitizen(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := sql.Open("postgres", pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedCatalog(t, db)

	bank := fakeBank(t)
	defer bank.Close()

	api := buildAPI(t, db, bank.URL, nil)

	type outcome struct {
		code int
		env  envelope
		err  error
	}
	results := make(chan outcome, 2)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			req := httptest.NewRequest(http.MethodPost, "/api/v5/pag_pagos/carro", strings.NewReader(cartBody))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			api.ServeHTTP(rec, req)

			var env envelope
			err := json.NewDecoder(rec.Body).Decode(&env)
			results <- outcome{code: rec.Code, env: env, err: err}
		}()
	}
	close(start)

	for i := 0; i < 2; i++ {
		res := <-results
		if res.err != nil {
			t.Fatalf("failed to decode envelope: %v", res.err)
		}
		if res.code != http.StatusOK || !res.env.Success {
			t.Fatalf("carro: code=%d success=%v message=%q", res.code, res.env.Success, res.env.Message)
		}
	}

	var citizens int
	if err := db.QueryRow(`SELECT COUNT(*) FROM cit_clientes WHERE curp = 'XEXX010101HNEXXXA4'`).Scan(&citizens); err != nil {
		t.Fatalf("failed to count citizens: %v", err)
	}
	if citizens != 1 {
		t.Fatalf("citizens = %d, want 1", citizens)
	}

	var orders int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pag_pagos`).Scan(&orders); err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	if orders != 2 {
		t.Fatalf("orders = %d, want 2", orders)
	}
}

func TestReceiptsPipeline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	db, err := sql.Open("postgres", pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedCatalog(t, db)

	bank := fakeBank(t)
	defer bank.Close()

	emails := make(chan map[string]string, 1)
	emailService := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		emails <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer emailService.Close()

	producer := messaging.NewProducer(brokers, messaging.TopicOrderSettled)
	defer func() { _ = producer.Close() }()

	api := buildAPI(t, db, bank.URL, producer)

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderSettled, messaging.GroupReceipts,
		messaging.WithStartOffset(-2))
	defer func() { _ = consumer.Close() }()

	receiptsHandler := receipts.NewHandler(payments.NewRepository(db), emailService.URL, emailService.Client(), slog.Default())

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	go func() {
		_ = consumer.Consume(consumerCtx, receiptsHandler.Handle)
	}()

	_, env := doJSON(t, api, http.MethodPost, "/api/v5/pag_pagos/carro", cartBody)
	if !env.Success {
		t.Fatalf("carro failed: %q", env.Message)
	}
	var cart struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &cart); err != nil {
		t.Fatalf("failed to decode cart: %v", err)
	}

	chain, err := webpay.EncodeResult(bankKey, banking.Result{
		OrderID:      cart.ID,
		ResponseCode: banking.ResponseApproved,
		Folio:        "987654",
	})
	if err != nil {
		t.Fatalf("failed to forge settlement: %v", err)
	}
	resultBody, _ := json.Marshal(map[string]string{"xml_encriptado": chain})

	_, env = doJSON(t, api, http.MethodPost, "/api/v5/pag_pagos/resultado", string(resultBody))
	if !env.Success {
		t.Fatalf("resultado failed: %q", env.Message)
	}

	select {
	case email := <-emails:
		if email["to"] != "maria@example.com" {
			t.Errorf("receipt to = %q", email["to"])
		}
		if email["subject"] != "Comprobante de pago 987654" {
			t.Errorf("receipt subject = %q", email["subject"])
		}
	case <-time.After(90 * time.Second):
		t.Fatal("receipt email never arrived")
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		var sent bool
		if err := db.QueryRow(`SELECT ya_se_envio_comprobante FROM pag_pagos WHERE id = $1`, cart.ID).Scan(&sent); err != nil {
			t.Fatalf("failed to read comprobante flag: %v", err)
		}
		if sent {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("comprobante flag never set")
		}
		time.Sleep(time.Second)
	}
}
