// Package webpay implements the banking.Gateway contract against the
// WebPay-style bank service: XML chains encrypted with a shared key,
// exchanged over HTTP.
package webpay

import (
	"context"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tramites-digitales/pagos-api/internal/banking"
)

// Client talks to the bank's pay-link endpoint and decrypts its
// asynchronous settlement callbacks.
type Client struct {
	endpoint   string
	key        []byte
	httpClient *http.Client
}

// NewClient builds a Client. hexKey is the shared AES-256 key, hex
// encoded (64 characters).
func NewClient(endpoint, hexKey string, httpClient *http.Client) (*Client, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode bank key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("bank key must be 32 bytes, got %d", len(key))
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, key: key, httpClient: httpClient}, nil
}

type payLinkRequestXML struct {
	XMLName     xml.Name `xml:"pago"`
	OrderID     string   `xml:"pago_id"`
	CitizenID   string   `xml:"cliente_id"`
	Email       string   `xml:"email"`
	Description string   `xml:"descripcion"`
	Amount      string   `xml:"monto"`
}

type payLinkResponseXML struct {
	XMLName xml.Name `xml:"respuesta"`
	URL     string   `xml:"url"`
	Error   string   `xml:"error"`
}

// CreatePayLink encrypts the pay-link request, posts it to the bank and
// returns the redirect URL for the citizen's browser.
func (c *Client) CreatePayLink(ctx context.Context, req banking.PayLinkRequest) (string, error) {
	payload, err := xml.Marshal(payLinkRequestXML{
		OrderID:     req.OrderID,
		CitizenID:   req.CitizenID,
		Email:       req.Email,
		Description: req.ServiceDetail,
		Amount:      req.Amount.StringFixed(2),
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", banking.ErrGateway, err)
	}

	chain, err := encryptChain(c.key, string(payload))
	if err != nil {
		return "", fmt.Errorf("%w: encrypt request: %v", banking.ErrGateway, err)
	}

	form := url.Values{"xml_encriptado": {chain}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", banking.ErrGateway, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", banking.ErrGateway, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", banking.ErrGateway, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: bank returned status %d", banking.ErrGateway, resp.StatusCode)
	}

	var parsed payLinkResponseXML
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", banking.ErrGateway, err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: %s", banking.ErrGateway, parsed.Error)
	}
	if parsed.URL == "" {
		return "", fmt.Errorf("%w: response carries no pay link", banking.ErrGateway)
	}
	return parsed.URL, nil
}

// EncodeResult forges an encrypted settlement chain. The bank builds
// these in production; this helper exists for sandbox runs and tests.
func EncodeResult(hexKey string, res banking.Result) (string, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return "", fmt.Errorf("decode bank key: %w", err)
	}
	payload, err := xml.Marshal(settlementXML{
		OrderID:      res.OrderID,
		ResponseCode: res.ResponseCode,
		Folio:        res.Folio,
	})
	if err != nil {
		return "", err
	}
	return encryptChain(key, string(payload))
}

type settlementXML struct {
	XMLName      xml.Name `xml:"resultado"`
	OrderID      string   `xml:"pago_id"`
	ResponseCode string   `xml:"respuesta"`
	Folio        string   `xml:"folio"`
}

// DecryptResult decrypts and parses a settlement callback. Any crypto or
// shape failure aborts the callback without touching any order.
func (c *Client) DecryptResult(_ context.Context, encrypted string) (*banking.Result, error) {
	plain, err := decryptChain(c.key, encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt result: %v", banking.ErrGateway, err)
	}

	var parsed settlementXML
	if err := xml.Unmarshal([]byte(plain), &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse result: %v", banking.ErrGateway, err)
	}
	if parsed.OrderID == "" {
		return nil, fmt.Errorf("%w: result carries no order id", banking.ErrGateway)
	}

	return &banking.Result{
		OrderID:      parsed.OrderID,
		ResponseCode: parsed.ResponseCode,
		Folio:        parsed.Folio,
		XML:          plain,
	}, nil
}
