package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/newmedica/storefront/internal/domain"
)

// hostedCheckoutURL — страница провайдера, куда уводит hosted-сессия.
const hostedCheckoutURL = "https://checkout.stripe.com/c/pay/"

// printNavigator вместо перехода печатает адрес, который открыл бы браузер.
type printNavigator struct {
	out    io.Writer
	origin string
}

var _ domain.Navigator = (*printNavigator)(nil)

func newPrintNavigator(out io.Writer, origin string) *printNavigator {
	return &printNavigator{out: out, origin: strings.TrimRight(origin, "/")}
}

func (n *printNavigator) RedirectToCheckout(_ context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return domain.ErrPaymentSessionFailed
	}
	_, err := fmt.Fprintf(n.out, "open %s%s\n", hostedCheckoutURL, url.PathEscape(sessionID))
	return err
}

func (n *printNavigator) Navigate(_ context.Context, path string) error {
	_, err := fmt.Fprintf(n.out, "open %s%s\n", n.origin, path)
	return err
}
