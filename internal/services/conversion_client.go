package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crediexpress/corebanking/internal/models"
	"github.com/shopspring/decimal"
)

// ConversionGateway quotes a cross-currency amount including commission.
type ConversionGateway interface {
	Quote(ctx context.Context, fromCurrency, toCurrency string, amount decimal.Decimal) (*models.ConversionQuote, error)
}

// HTTPConversionClient calls the currency conversion service over HTTP.
type HTTPConversionClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func NewHTTPConversionClient(baseURL string, timeout time.Duration) *HTTPConversionClient {
	return &HTTPConversionClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

type conversionResponse struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	Quote   *models.ConversionQuote `json:"quote"`
}

func (c *HTTPConversionClient) Quote(ctx context.Context, fromCurrency, toCurrency string, amount decimal.Decimal) (*models.ConversionQuote, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: conversion service url is empty", ErrConversionFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("from", fromCurrency)
	params.Set("to", toCurrency)
	params.Set("amount", amount.StringFixed(2))
	endpoint := fmt.Sprintf("%s/conversions/quote?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversion request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			log.Printf("[CONVERSION] Quote %s->%s timed out after %s", fromCurrency, toCurrency, c.timeout)
			return nil, fmt.Errorf("%w: after %s", ErrConversionTimeout, c.timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: after %s", ErrConversionTimeout, c.timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	var payload conversionResponse
	decodeErr := json.Unmarshal(body, &payload)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := payload.Message
		if decodeErr != nil || message == "" {
			message = fmt.Sprintf("conversion service returned status %d", resp.StatusCode)
		}
		log.Printf("[CONVERSION] Quote %s->%s rejected: %s", fromCurrency, toCurrency, message)
		return nil, fmt.Errorf("%w: %s", ErrConversionFailed, message)
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("%w: invalid response body: %v", ErrConversionFailed, decodeErr)
	}

	if !payload.Success || payload.Quote == nil {
		message := payload.Message
		if message == "" {
			message = "conversion service returned no quote"
		}
		return nil, fmt.Errorf("%w: %s", ErrConversionFailed, message)
	}

	return payload.Quote, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
