// File: internal/infra/adapters/payment/daraja_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*DarajaGateway)(nil)

const darajaTimestampLayout = "20060102150405"

// Result codes returned by the STK query endpoint.
const (
	darajaResultSuccess         = "0"
	darajaResultInsufficient    = "1"
	darajaResultCancelled       = "1032"
	darajaResultHandsetTimeout  = "1037"
	darajaResultWrongPIN        = "2001"
	darajaErrProcessing         = "500.001.1001"
	darajaAccountReferenceLimit = 12
	darajaDescriptionLimit      = 13
)

type DarajaCredentials struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	CallbackURL    string
}

// DarajaGateway implements adapter.PaymentGateway against the Safaricom Daraja
// STK push (Lipa Na M-Pesa Online) API.
type DarajaGateway struct {
	baseURL string
	creds   DarajaCredentials
	client  *http.Client
	now     func() time.Time
	log     *zerolog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewDarajaGateway(baseURL string, creds DarajaCredentials, timeout time.Duration, logger *zerolog.Logger) (*DarajaGateway, error) {
	if creds.ConsumerKey == "" || creds.ConsumerSecret == "" {
		return nil, errors.New("daraja consumer key/secret empty")
	}
	if creds.ShortCode == "" || creds.PassKey == "" {
		return nil, errors.New("daraja short code/pass key empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid daraja base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "daraja").Logger()
	return &DarajaGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
		log:     &l,
	}, nil
}

func (d *DarajaGateway) Name() string { return "mpesa" }

func (d *DarajaGateway) TransactionLimits() model.TransactionLimits {
	return model.DefaultTransactionLimits()
}

type darajaError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (d *DarajaGateway) InitiatePayment(ctx context.Context, req model.PaymentRequest) model.PaymentOutcome {
	if code := req.Validate(); code != model.ErrorCodeNone {
		return model.ValidationOutcome(code)
	}
	phone := model.FormatPhoneNumber(req.PhoneNumber)
	ts := d.now().Format(darajaTimestampLayout)
	payload := map[string]any{
		"BusinessShortCode": d.creds.ShortCode,
		"Password":          d.password(ts),
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            req.Amount,
		"PartyA":            phone,
		"PartyB":            d.creds.ShortCode,
		"PhoneNumber":       phone,
		"CallBackURL":       d.creds.CallbackURL,
		"AccountReference":  truncate(req.Reference, darajaAccountReferenceLimit),
		"TransactionDesc":   truncate(req.Description, darajaDescriptionLimit),
	}
	var out struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
		darajaError
	}
	if err := d.post(ctx, "/mpesa/stkpush/v1/processrequest", payload, &out); err != nil {
		d.log.Error().Err(err).Msg("stk push failed")
		return model.FailedOutcome(model.ErrorCodeAPIError, msgInitiateFailed)
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		d.log.Warn().Str("response_code", out.ResponseCode).Str("error_code", out.ErrorCode).
			Str("desc", out.ResponseDescription+out.ErrorMessage).Msg("stk push rejected")
		return model.FailedOutcome(model.ErrorCodeAPIError, msgInitiateFailed)
	}
	return model.PaymentOutcome{Success: true, CheckoutRequestID: out.CheckoutRequestID, Message: msgSTKSent}
}

func (d *DarajaGateway) CheckPaymentStatus(ctx context.Context, checkoutRequestID string) model.PaymentOutcome {
	if checkoutRequestID == "" {
		return model.FailedOutcome(model.ErrorCodeAPIError, msgUnknownCheckout)
	}
	ts := d.now().Format(darajaTimestampLayout)
	payload := map[string]any{
		"BusinessShortCode": d.creds.ShortCode,
		"Password":          d.password(ts),
		"Timestamp":         ts,
		"CheckoutRequestID": checkoutRequestID,
	}
	var out struct {
		ResponseCode string `json:"ResponseCode"`
		ResultCode   string `json:"ResultCode"`
		ResultDesc   string `json:"ResultDesc"`
		darajaError
	}
	err := d.post(ctx, "/mpesa/stkpushquery/v1/query", payload, &out)
	if out.ErrorCode == darajaErrProcessing {
		return model.FailedOutcome(model.ErrorCodePending, out.ErrorMessage)
	}
	if err != nil {
		d.log.Error().Err(err).Str("checkout_request_id", checkoutRequestID).Msg("stk query failed")
		return model.FailedOutcome(model.ErrorCodeAPIError, msgStatusFailed)
	}
	return mapResultCode(checkoutRequestID, out.ResultCode, out.ResultDesc)
}

func mapResultCode(checkoutRequestID, code, desc string) model.PaymentOutcome {
	switch code {
	case darajaResultSuccess:
		return model.PaymentOutcome{Success: true, CheckoutRequestID: checkoutRequestID, Message: msgPaymentCompleted}
	case "":
		return model.FailedOutcome(model.ErrorCodePending, "Payment is still being processed")
	}
	msg := msgPaymentFailed
	switch code {
	case darajaResultCancelled:
		msg = "Payment was cancelled on the phone"
	case darajaResultHandsetTimeout:
		msg = "The phone could not be reached in time"
	case darajaResultWrongPIN:
		msg = "The M-Pesa PIN entered was incorrect"
	case darajaResultInsufficient:
		msg = "Insufficient M-Pesa balance"
	default:
		if desc != "" {
			msg = desc
		}
	}
	out := model.FailedOutcome(model.ErrorCodePaymentFailed, msg)
	out.CheckoutRequestID = checkoutRequestID
	return out
}

// password is base64(shortcode + passkey + timestamp).
func (d *DarajaGateway) password(ts string) string {
	return base64.StdEncoding.EncodeToString([]byte(d.creds.ShortCode + d.creds.PassKey + ts))
}

// accessToken returns a cached OAuth token, refreshing it a minute before expiry.
func (d *DarajaGateway) accessToken(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.token != "" && d.now().Before(d.tokenExpiry) {
		return d.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(d.creds.ConsumerKey, d.creds.ConsumerSecret)
	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("daraja oauth http %d", resp.StatusCode)
	}
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("daraja oauth decode: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("daraja oauth returned empty token")
	}
	secs, err := strconv.Atoi(out.ExpiresIn)
	if err != nil || secs <= 0 {
		secs = 3599
	}
	d.token = out.AccessToken
	d.tokenExpiry = d.now().Add(time.Duration(secs)*time.Second - time.Minute)
	return d.token, nil
}

// post sends a JSON request and decodes the body into out even for non-2xx
// responses, since Daraja reports business errors in the body.
func (d *DarajaGateway) post(ctx context.Context, path string, payload any, out any) error {
	token, err := d.accessToken(ctx)
	if err != nil {
		return err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	decErr := json.NewDecoder(resp.Body).Decode(out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("daraja %s http %d", path, resp.StatusCode)
	}
	if decErr != nil {
		return fmt.Errorf("daraja %s decode: %w", path, decErr)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
