/**
 * @description
 * This package provides a thin client for the Stripe API calls this system
 * makes: customer and payment-method setup, recurring-price provisioning,
 * subscription lifecycle, one-off payments and refunds. It encapsulates the
 * authenticated form-encoded HTTP requests and response parsing; every call is
 * expected to run through the reliability tracker's wrapper so its outcome is
 * measured.
 *
 * @dependencies
 * - context, net/http, net/url, encoding/json: Standard Go libraries.
 */
package stripeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a client for the Stripe API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new Stripe API client.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ErrorResponse represents an error returned by the Stripe API.
type ErrorResponse struct {
	Err struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.Err.Message != "" {
		return fmt.Sprintf("stripe api error: %s - %s", e.Err.Code, e.Err.Message)
	}
	return "unknown stripe api error"
}

// Code returns the processor's error code, empty when none was supplied.
func (e *ErrorResponse) Code() string { return e.Err.Code }

// Customer is a Stripe customer object.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// PaymentMethod is a Stripe payment method object.
type PaymentMethod struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

// Product is a Stripe product object.
type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Price is a Stripe recurring price object.
type Price struct {
	ID         string `json:"id"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
}

// Subscription is a Stripe subscription object.
type Subscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PaymentIntent is a Stripe payment intent object.
type PaymentIntent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

// Refund is a Stripe refund object.
type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateCustomer registers a customer with the processor.
func (c *Client) CreateCustomer(ctx context.Context, email, name string) (*Customer, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("name", name)

	var customer Customer
	if err := c.doForm(ctx, "/v1/customers", form, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// AttachPaymentMethod binds a payment method to a customer and makes it the
// default for invoices.
func (c *Client) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) (*PaymentMethod, error) {
	form := url.Values{}
	form.Set("customer", customerID)

	var pm PaymentMethod
	if err := c.doForm(ctx, "/v1/payment_methods/"+paymentMethodID+"/attach", form, &pm); err != nil {
		return nil, err
	}

	defaults := url.Values{}
	defaults.Set("invoice_settings[default_payment_method]", paymentMethodID)
	var customer Customer
	if err := c.doForm(ctx, "/v1/customers/"+customerID, defaults, &customer); err != nil {
		return nil, err
	}
	return &pm, nil
}

// CreateProduct provisions the processor-side product backing a subscription.
func (c *Client) CreateProduct(ctx context.Context, name string) (*Product, error) {
	form := url.Values{}
	form.Set("name", name)

	var product Product
	if err := c.doForm(ctx, "/v1/products", form, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// CreatePrice provisions a recurring price in CAD cents at the given interval.
// Interval must be a Stripe interval spec such as "week" or "month" with an
// optional count > 1 for bi-weekly cadences.
func (c *Client) CreatePrice(ctx context.Context, productID string, amountCents int64, interval string, intervalCount int) (*Price, error) {
	form := url.Values{}
	form.Set("product", productID)
	form.Set("unit_amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", "cad")
	form.Set("recurring[interval]", interval)
	if intervalCount > 1 {
		form.Set("recurring[interval_count]", strconv.Itoa(intervalCount))
	}

	var price Price
	if err := c.doForm(ctx, "/v1/prices", form, &price); err != nil {
		return nil, err
	}
	return &price, nil
}

// CreateSubscription starts recurring billing for a customer at a price.
func (c *Client) CreateSubscription(ctx context.Context, customerID, priceID string) (*Subscription, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("items[0][price]", priceID)

	var sub Subscription
	if err := c.doForm(ctx, "/v1/subscriptions", form, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CancelSubscription cancels recurring billing immediately.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/v1/subscriptions/"+subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cancel request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	var sub Subscription
	if err := c.do(req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreatePaymentIntent creates and immediately captures a one-off CAD payment.
func (c *Client) CreatePaymentIntent(ctx context.Context, customerID string, amountCents int64, description string) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", "cad")
	form.Set("confirm", "true")
	form.Set("description", description)

	var intent PaymentIntent
	if err := c.doForm(ctx, "/v1/payment_intents", form, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// CreateRefund refunds a captured payment intent.
func (c *Client) CreateRefund(ctx context.Context, paymentIntentID string) (*Refund, error) {
	form := url.Values{}
	form.Set("payment_intent", paymentIntentID)

	var refund Refund
	if err := c.doForm(ctx, "/v1/refunds", form, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

// doForm executes an authenticated form-encoded POST against the Stripe API.
func (c *Client) doForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create stripe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute stripe request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			return fmt.Errorf("failed to decode stripe error response (status %d)", resp.StatusCode)
		}
		return &errResp
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode stripe response: %w", err)
	}
	return nil
}
