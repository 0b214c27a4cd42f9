package payment

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/pkcs12"

	"github.com/shapeai4-rgb/shapeai/pkg/config"
	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
)

var (
	errBizonProjectRequired  = errors.New("bizon project is required")
	errBizonUsernameRequired = errors.New("bizon username is required")
	errBizonCertRequired     = errors.New("bizon client certificate is required")
	errBizonLoggerRequired   = errors.New("bizon logger is required")

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// BizonClient talks to the Bizon acquiring API over mutual TLS.
type BizonClient struct {
	httpClient *http.Client
	apiURL     string
	project    string
	username   string
	password   string
	returnURL  string
	failURL    string
	logger     *logger.Logger
}

// NewBizonClient decodes the PKCS#12 client certificate and builds the
// mutually authenticated HTTP client.
func NewBizonClient(ctx context.Context, cfg config.BizonConfig, logg *logger.Logger) (*BizonClient, error) {
	if logg == nil {
		return nil, errBizonLoggerRequired
	}
	if strings.TrimSpace(cfg.Project) == "" {
		return nil, errBizonProjectRequired
	}
	if strings.TrimSpace(cfg.Username) == "" {
		return nil, errBizonUsernameRequired
	}

	cert, err := clientCertificate(cfg.CertP12Base64, cfg.CertPassword)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		},
		// Payment pages come back as a redirect; surface the Location
		// header instead of following it.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	c := &BizonClient{
		httpClient: httpClient,
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		project:    cfg.Project,
		username:   cfg.Username,
		password:   cfg.APIPassword,
		returnURL:  cfg.ReturnURL,
		failURL:    cfg.FailURL,
		logger:     logg,
	}

	logg.Info(ctx, "bizon client initialized")
	return c, nil
}

func clientCertificate(p12Base64, password string) (tls.Certificate, error) {
	raw := whitespaceRe.ReplaceAllString(p12Base64, "")
	if raw == "" {
		return tls.Certificate{}, errBizonCertRequired
	}
	pfx, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decoding pkcs12 base64: %w", err)
	}

	blocks, err := pkcs12.ToPEM(pfx, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parsing pkcs12 bundle: %w", err)
	}
	var pemData []byte
	for _, block := range blocks {
		pemData = append(pemData, pem.EncodeToMemory(block)...)
	}

	cert, err := tls.X509KeyPair(pemData, pemData)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("building client key pair: %w", err)
	}
	return cert, nil
}

func (c *BizonClient) Name() string { return ProviderBizon }

type bizonOrderRequest struct {
	Project     string       `json:"project"`
	Amount      string       `json:"amount"`
	Currency    string       `json:"currency"`
	Description string       `json:"description"`
	Client      bizonClient  `json:"client"`
	Options     bizonOptions `json:"options"`
}

type bizonClient struct {
	Name     string        `json:"name"`
	Email    string        `json:"email"`
	Address  bizonAddress  `json:"address"`
	Location bizonLocation `json:"location"`
}

type bizonAddress struct {
	Country string `json:"country"`
	City    string `json:"city"`
	Street  string `json:"street"`
	Zip     string `json:"zip"`
}

type bizonLocation struct {
	IP string `json:"ip"`
}

type bizonOptions struct {
	ReturnURL  string `json:"return_url"`
	FailURL    string `json:"fail_url"`
	AutoCharge int    `json:"auto_charge"`
	Form       string `json:"form"`
	Language   string `json:"language"`
	Force3D    int    `json:"force3d"`
}

// CreateCheckout creates a Bizon order and returns the card form redirect.
func (c *BizonClient) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout amount must be positive")
	}

	amount := decimal.NewFromInt(int64(params.AmountCents)).Div(decimal.NewFromInt(100)).StringFixed(2)
	description := params.Description
	if description == "" {
		description = "Top-up"
	}
	clientIP := params.ClientIP
	if clientIP == "" {
		clientIP = "1.1.1.1"
	}

	payload := bizonOrderRequest{
		Project:     c.project,
		Amount:      amount,
		Currency:    string(params.Currency),
		Description: description,
		Client: bizonClient{
			Name:  "Customer",
			Email: params.UserEmail,
			Address: bizonAddress{
				Country: "GB",
				City:    "London",
				Street:  "Unknown",
				Zip:     "SW1A1AA",
			},
			Location: bizonLocation{IP: clientIP},
		},
		Options: bizonOptions{
			ReturnURL:  c.returnURL,
			FailURL:    c.failURL,
			AutoCharge: 1,
			Form:       "redirect",
			Language:   "en",
			Force3D:    1,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding bizon order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/orders/create", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building bizon request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	ctx = c.logger.WithFields(ctx, map[string]any{
		"amount":   amount,
		"currency": params.Currency,
	})
	c.logger.Info(ctx, "bizon order create request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error(ctx, "bizon order create failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bizon order create failed")
	}
	defer resp.Body.Close()

	redirectURL := resp.Header.Get("Location")
	if redirectURL == "" {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error(ctx, "bizon order create returned no redirect",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bizon returned no redirect URL")
	}

	return &CheckoutSession{URL: redirectURL, SessionID: orderIDFromRedirect(redirectURL)}, nil
}

// BizonOrder is the subset of the order status payload the platform reads.
type BizonOrder struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Amount   string          `json:"amount"`
	Currency string          `json:"currency"`
	Raw      json.RawMessage `json:"-"`
}

// Paid reports whether the order has been charged. Orders are created
// with auto_charge, so charged is the only settled state.
func (o *BizonOrder) Paid() bool {
	return strings.EqualFold(o.Status, "charged")
}

// GetOrder fetches an order with card and operation details expanded.
func (c *BizonClient) GetOrder(ctx context.Context, orderID string) (*BizonOrder, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	url := fmt.Sprintf("%s/orders/%s?expand=card,operations", c.apiURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building bizon request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bizon order lookup failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading bizon response")
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bizon order not found")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("bizon order lookup returned status %d", resp.StatusCode))
	}

	var order BizonOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding bizon order")
	}
	order.Raw = raw
	return &order, nil
}

func orderIDFromRedirect(redirectURL string) string {
	trimmed := strings.TrimRight(redirectURL, "/")
	if idx := strings.LastIndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
