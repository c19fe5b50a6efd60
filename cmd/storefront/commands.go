package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/newmedica/storefront/internal/account"
	"github.com/newmedica/storefront/internal/checkout"
	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/reconcile"
	"github.com/newmedica/storefront/internal/validation"
)

func (e *env) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return e.login(ctx, args)
	case "logout":
		e.sf.Session.Logout(ctx)
		_, _ = fmt.Fprintln(e.out, "logged out")
		return nil
	case "whoami":
		return e.whoami()
	case "cart":
		return e.cart(ctx, args)
	case "checkout":
		return e.checkout(ctx, args)
	case "complete":
		return e.complete(ctx, args)
	case "orders":
		return e.orders(ctx, args)
	case "addresses":
		return e.addresses(ctx, args)
	case "vouchers":
		return e.vouchers(ctx, args)
	case "profile":
		return e.profile()
	case "quote":
		return e.quote(ctx, args)
	default:
		return errUsage
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (e *env) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	user, err := e.sf.Session.Login(ctx, args[0], e.getenv(envPassword))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(e.out, "logged in as %s (%s)\n", user.Email, user.ID)
	return nil
}

func (e *env) whoami() error {
	user, ok := e.sf.Session.User()
	if !ok {
		return domain.ErrAuthTokenMissing
	}
	_, _ = fmt.Fprintf(e.out, "%s %s <%s> type=%s\n", user.FirstName, user.LastName, user.Email, user.UserType)
	return nil
}

func (e *env) cart(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	store := e.sf.Cart
	switch args[0] {
	case "show":
	case "add":
		if len(args) < 2 || len(args) > 3 {
			return errUsage
		}
		quantity := 1
		if len(args) == 3 {
			q, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("quantity: %w", err)
			}
			quantity = q
		}
		store.AddItem(ctx, args[1], quantity)
	case "set":
		if len(args) != 3 {
			return errUsage
		}
		q, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("quantity: %w", err)
		}
		e.sf.Editor.Set(args[1], q)
		e.sf.Editor.Flush()
	case "remove":
		if len(args) != 2 {
			return errUsage
		}
		store.RemoveItem(ctx, args[1])
	default:
		return errUsage
	}

	if msg := store.Err(); msg != "" {
		return errors.New(msg)
	}
	printCart(e.out, store.Cart())
	return nil
}

func printCart(out io.Writer, cart domain.Cart) {
	if len(cart.Items) == 0 {
		_, _ = fmt.Fprintln(out, "cart is empty")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ITEM\tPRODUCT\tQTY\tPRICE")
	for _, item := range cart.Items {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", item.ID, item.Product.Name, item.Quantity, item.Product.Price.StringFixed(2))
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(out, "subtotal %s  discount %s  shipping %s  total %s\n",
		cart.Subtotal.StringFixed(2), cart.Discount.StringFixed(2), cart.Shipping.StringFixed(2), cart.Total.StringFixed(2))
	if cart.AppliedVoucherCode != nil {
		_, _ = fmt.Fprintf(out, "voucher %s\n", *cart.AppliedVoucherCode)
	}
}

func (e *env) checkout(ctx context.Context, args []string) error {
	var (
		method, email, key, remark string
		phone                      string
	)
	fs := newFlagSet("checkout")
	fs.StringVar(&method, "method", string(domain.PaymentMethodStripe), "payment method: stripe|bank_transfer|fpx|duitnow_qr")
	fs.StringVar(&email, "email", "", "contact email (default: profile email)")
	fs.StringVar(&key, "key", "", "idempotency key of this submission")
	fs.StringVar(&remark, "remark", "", "order remark")
	fs.StringVar(&phone, "phone", "", "override shipping phone")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	paymentMethod, err := domain.ParsePaymentMethod(method)
	if err != nil {
		return err
	}

	e.sf.Cart.Fetch(ctx)
	form, _ := e.sf.Checkout.Prefill(ctx)
	if remark != "" {
		form.Remark = remark
	}
	if phone != "" {
		form.Phone = phone
	}
	if email == "" {
		if user, ok := e.sf.Session.User(); ok {
			email = user.Email
		}
	}

	result, err := e.sf.Checkout.Submit(ctx, checkout.Submission{
		Form:         form,
		Method:       paymentMethod,
		ContactEmail: email,
		Key:          key,
	})
	if err != nil {
		if verr, ok := validation.AsError(err); ok {
			return fmt.Errorf("check the shipping address (add a primary address first): %w", verr)
		}
		return err
	}

	summary := e.sf.Checkout.Summary()
	_, _ = fmt.Fprintf(e.out, "order %s total %s\n", result.Order.ID, summary.Total.StringFixed(2))
	if result.Replayed {
		_, _ = fmt.Fprintln(e.out, "(replayed from an earlier submission)")
	}
	return nil
}

func (e *env) complete(ctx context.Context, args []string) error {
	var orderID, sessionID string
	fs := newFlagSet("complete")
	fs.StringVar(&orderID, "order-id", "", "order id from the success page")
	fs.StringVar(&sessionID, "session-id", "", "hosted payment session id")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if sessionID != "" && !e.sf.Session.IsAuthenticated() {
		// Без сессии сверка сама покажет просьбу войти.
		_ = e.autoLogin(ctx)
	}

	view := e.sf.Completion().Run(ctx, reconcile.Params{OrderID: orderID, SessionID: sessionID})
	if view.Status != reconcile.StatusSuccess {
		return fmt.Errorf("%s (back to %s)", view.Message, view.RetryPath)
	}
	_, _ = fmt.Fprintf(e.out, "order %s confirmed\n", view.OrderID)
	return nil
}

func (e *env) orders(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "list":
		orders, err := e.sf.Account.Orders(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ORDER\tPAYMENT\tMETHOD\tTOTAL")
		for _, order := range orders {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", order.ID, order.PaymentStatus, order.PaymentMethod, order.TotalAmount.StringFixed(2))
		}
		return tw.Flush()
	case "show":
		if len(args) != 2 {
			return errUsage
		}
		order, err := e.sf.Account.Order(ctx, args[1])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(e.out, "order %s payment=%s method=%s\n", order.ID, order.PaymentStatus, order.PaymentMethod)
		for _, item := range order.Items {
			_, _ = fmt.Fprintf(e.out, "  %+v\n", item)
		}
		_, _ = fmt.Fprintf(e.out, "subtotal %s  discount %s  shipping %s  total %s\n",
			order.SubtotalAmount.StringFixed(2), order.DiscountAmount.StringFixed(2),
			order.ShippingAmount.StringFixed(2), order.TotalAmount.StringFixed(2))
		return nil
	case "retry":
		if len(args) != 2 {
			return errUsage
		}
		paymentURL, err := e.sf.Account.RetryPayment(ctx, args[1])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(e.out, "pay at %s\n", paymentURL)
		return nil
	default:
		return errUsage
	}
}

func (e *env) addresses(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "list":
		list, err := e.sf.Account.Addresses(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tNAME\tADDRESS\tPRIMARY")
		for _, addr := range list {
			_, _ = fmt.Fprintf(tw, "%s\t%s %s\t%s, %s %s\t%t\n",
				addr.ID, addr.FirstName, addr.LastName, addr.Address1, addr.Postcode, addr.City, addr.IsPrimary)
		}
		return tw.Flush()
	case "add":
		input, err := parseAddress(args[1:])
		if err != nil {
			return err
		}
		created, err := e.sf.Account.CreateAddress(ctx, input)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(e.out, "address %s added\n", created.ID)
		return nil
	case "primary":
		if len(args) != 2 {
			return errUsage
		}
		addr, err := e.sf.Account.SetPrimaryAddress(ctx, args[1])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(e.out, "address %s is primary\n", addr.ID)
		return nil
	case "delete":
		if len(args) != 2 {
			return errUsage
		}
		if err := e.sf.Account.DeleteAddress(ctx, args[1]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(e.out, "address %s deleted\n", args[1])
		return nil
	default:
		return errUsage
	}
}

func parseAddress(args []string) (domain.AddressInput, error) {
	input := domain.AddressInput{Country: checkout.DefaultCountry, State: checkout.DefaultState}
	fs := newFlagSet("addresses add")
	fs.StringVar(&input.FirstName, "first-name", "", "first name")
	fs.StringVar(&input.LastName, "last-name", "", "last name")
	fs.StringVar(&input.Phone, "phone", "", "phone")
	fs.StringVar(&input.Address1, "address1", "", "address line 1")
	fs.StringVar(&input.Address2, "address2", "", "address line 2")
	fs.StringVar(&input.City, "city", "", "city")
	fs.StringVar(&input.State, "state", input.State, "state")
	fs.StringVar(&input.Postcode, "postcode", "", "postcode")
	fs.StringVar(&input.Country, "country", input.Country, "country")
	fs.BoolVar(&input.IsPrimary, "primary", false, "make primary")
	if err := fs.Parse(args); err != nil {
		return domain.AddressInput{}, errUsage
	}
	return input, nil
}

func (e *env) vouchers(ctx context.Context, args []string) error {
	var active bool
	fs := newFlagSet("vouchers")
	fs.BoolVar(&active, "active", false, "only active vouchers")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	list, err := e.sf.Account.Vouchers(ctx, active)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CODE\tTYPE\tAMOUNT\tMIN QTY\tACTIVE")
	for _, v := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%g\t%d\t%t\n", v.Code, v.DiscountType, v.Amount, v.MinQuantity, v.IsActive)
	}
	return tw.Flush()
}

func (e *env) profile() error {
	status, err := e.sf.Account.Profile()
	if err != nil {
		return err
	}
	if status.Complete() {
		_, _ = fmt.Fprintf(e.out, "profile of %s is complete\n", status.User.Email)
		return nil
	}
	labels := make([]string, 0, len(status.Missing))
	for _, field := range status.Missing {
		labels = append(labels, field.Label)
	}
	_, _ = fmt.Fprintf(e.out, "profile of %s is missing: %s\n", status.User.Email, strings.Join(labels, ", "))
	return nil
}

func (e *env) quote(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	product, err := e.sf.Backend.GetProduct(ctx, args[0])
	if err != nil {
		return err
	}
	user, _ := e.sf.Session.User()
	req := account.QuotationDraft(product, user)

	fs := newFlagSet("quote")
	fs.StringVar(&req.Department, "department", req.Department, "department")
	fs.StringVar(&req.CompanyName, "company", req.CompanyName, "company name")
	fs.StringVar(&req.TelNo, "tel", req.TelNo, "telephone")
	fs.StringVar(&req.Address, "address", req.Address, "company address")
	if err := fs.Parse(args[1:]); err != nil {
		return errUsage
	}

	id, err := e.sf.Account.RequestQuotation(ctx, req)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(e.out, "quotation %s requested for %s\n", id, product.Name)
	return nil
}
