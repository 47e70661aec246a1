package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Gateway talks JSON to a payment gateway over HTTP. The per-call context
// carries the deadline; the embedded client has no timeout of its own so the
// caller stays in charge.
type Gateway struct {
	baseURL string
	client  *http.Client
}

func NewGateway(baseURL string) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (g *Gateway) Charge(ctx context.Context, amountCents int64, currency, method, reference string) (ChargeResult, error) {
	body := map[string]any{
		"amount":    amountCents,
		"currency":  currency,
		"method":    method,
		"reference": reference,
	}
	var res ChargeResult
	if err := g.post(ctx, "/charges", body, &res); err != nil {
		return ChargeResult{}, err
	}
	return res, nil
}

func (g *Gateway) Refund(ctx context.Context, transactionID string, amountCents int64) (ChargeResult, error) {
	body := map[string]any{
		"transaction_id": transactionID,
		"amount":         amountCents,
	}
	var res ChargeResult
	if err := g.post(ctx, "/refunds", body, &res); err != nil {
		return ChargeResult{}, err
	}
	return res, nil
}

func (g *Gateway) Verify(ctx context.Context, reference string) (VerifyResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/charges/"+reference, nil)
	if err != nil {
		return VerifyResult{}, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return VerifyResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return VerifyResult{Known: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return VerifyResult{}, fmt.Errorf("payments: gateway verify status %d", resp.StatusCode)
	}
	var res VerifyResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return VerifyResult{}, err
	}
	res.Known = true
	return res, nil
}

func (g *Gateway) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("payments: gateway status %d on %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
