package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/events"
	"github.com/newmedica/storefront/internal/validation"
)

// ProfileStore — сессия, в которой хранится текущий профиль (обычно *session.Store).
type ProfileStore interface {
	User() (domain.User, bool)
	SetUser(ctx context.Context, user domain.User)
}

// Dependencies — зависимости Service.
type Dependencies struct {
	Users     domain.UserAPI
	Addresses domain.AddressAPI
	Orders    domain.OrderAPI
	Session   ProfileStore
}

// Options задаёт параметры Service.
type Options struct {
	Logger *log.Entry
	Events *events.Recorder
	Now    func() time.Time
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithEvents задаёт recorder для событий запроса предложения.
func WithEvents(recorder *events.Recorder) Option {
	return func(opts *Options) {
		opts.Events = recorder
	}
}

// WithClock задаёт источник времени для проверки ваучеров.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		if now != nil {
			opts.Now = now
		}
	}
}

// Service — личный кабинет: адреса, профиль, ваучеры, история заказов и запросы предложений.
type Service struct {
	deps   Dependencies
	logger *log.Entry
	events *events.Recorder
	now    func() time.Time
}

// NewService создаёт Service.
func NewService(deps Dependencies, options ...Option) *Service {
	opts := Options{Now: time.Now}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "account")
	}

	return &Service{
		deps:   deps,
		logger: logger,
		events: opts.Events,
		now:    opts.Now,
	}
}

var addressMessages = map[string]string{
	"first_name": "First name is required",
	"last_name":  "Last name is required",
	"phone":      "Phone number is required",
	"address1":   "Address is required",
	"city":       "City is required",
	"state":      "State is required",
	"postcode":   "Postcode is required",
	"country":    "Country is required",
}

// Addresses возвращает адресную книгу; основной адрес идёт первым.
func (s *Service) Addresses(ctx context.Context) ([]domain.Address, error) {
	list, err := s.deps.Addresses.ListAddresses(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Address, 0, len(list))
	for _, addr := range list {
		if addr.IsPrimary {
			out = append(out, addr)
		}
	}
	for _, addr := range list {
		if !addr.IsPrimary {
			out = append(out, addr)
		}
	}
	return out, nil
}

// PrimaryAddress возвращает основной адрес или domain.ErrAddressNotFound.
func (s *Service) PrimaryAddress(ctx context.Context) (domain.Address, error) {
	list, err := s.deps.Addresses.ListAddresses(ctx)
	if err != nil {
		return domain.Address{}, err
	}
	for _, addr := range list {
		if addr.IsPrimary {
			return addr, nil
		}
	}
	return domain.Address{}, domain.ErrAddressNotFound
}

// CreateAddress проверяет и сохраняет новый адрес.
func (s *Service) CreateAddress(ctx context.Context, input domain.AddressInput) (domain.Address, error) {
	input = normalizeAddress(input)
	if err := validation.Struct(input, addressMessages); err != nil {
		return domain.Address{}, err
	}

	addr, err := s.deps.Addresses.CreateAddress(ctx, input)
	if err != nil {
		return domain.Address{}, err
	}
	s.logger.WithField("address_id", addr.ID).Info("address created")
	return addr, nil
}

// UpdateAddress проверяет и сохраняет изменения адреса.
func (s *Service) UpdateAddress(ctx context.Context, addressID string, input domain.AddressInput) (domain.Address, error) {
	if strings.TrimSpace(addressID) == "" {
		return domain.Address{}, domain.ErrAddressNotFound
	}
	input = normalizeAddress(input)
	if err := validation.Struct(input, addressMessages); err != nil {
		return domain.Address{}, err
	}
	return s.deps.Addresses.UpdateAddress(ctx, addressID, input)
}

// DeleteAddress удаляет адрес.
func (s *Service) DeleteAddress(ctx context.Context, addressID string) error {
	if strings.TrimSpace(addressID) == "" {
		return domain.ErrAddressNotFound
	}
	if err := s.deps.Addresses.DeleteAddress(ctx, addressID); err != nil {
		return err
	}
	s.logger.WithField("address_id", addressID).Info("address deleted")
	return nil
}

// SetPrimaryAddress делает адрес основным.
func (s *Service) SetPrimaryAddress(ctx context.Context, addressID string) (domain.Address, error) {
	if strings.TrimSpace(addressID) == "" {
		return domain.Address{}, domain.ErrAddressNotFound
	}
	return s.deps.Addresses.SetPrimaryAddress(ctx, addressID)
}

// ProfileStatus — профиль и список незаполненных полей.
type ProfileStatus struct {
	User    domain.User
	Missing []domain.ProfileField
}

// Complete сообщает, что все обязательные для типа пользователя поля заполнены.
func (p ProfileStatus) Complete() bool {
	return len(p.Missing) == 0
}

// Profile возвращает профиль текущей сессии и незаполненные поля.
func (s *Service) Profile() (ProfileStatus, error) {
	user, ok := s.currentUser()
	if !ok {
		return ProfileStatus{}, domain.ErrAuthTokenMissing
	}
	return ProfileStatus{User: user, Missing: user.IncompleteFields()}, nil
}

// UpdateProfile отправляет изменённые поля и обновляет профиль в сессии.
func (s *Service) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (ProfileStatus, error) {
	changes := make(domain.ProfileUpdate, len(update))
	for field, value := range update {
		if value = strings.TrimSpace(value); value != "" {
			changes[field] = value
		}
	}
	if len(changes) == 0 {
		return s.Profile()
	}

	user, err := s.deps.Users.UpdateProfile(ctx, changes)
	if err != nil {
		return ProfileStatus{}, err
	}
	if s.deps.Session != nil {
		s.deps.Session.SetUser(ctx, user)
	}

	missing := user.IncompleteFields()
	s.logger.WithFields(log.Fields{
		"user_id": user.ID,
		"fields":  len(changes),
		"missing": len(missing),
	}).Info("profile updated")
	return ProfileStatus{User: user, Missing: missing}, nil
}

// Vouchers возвращает ваучеры; при activeOnly только пригодные сейчас.
func (s *Service) Vouchers(ctx context.Context, activeOnly bool) ([]domain.Voucher, error) {
	list, err := s.deps.Users.ListVouchers(ctx)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return list, nil
	}

	now := s.now()
	out := make([]domain.Voucher, 0, len(list))
	for _, v := range list {
		if v.Usable(now) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Orders возвращает историю заказов.
func (s *Service) Orders(ctx context.Context) ([]domain.Order, error) {
	return s.deps.Orders.ListOrders(ctx)
}

// Order возвращает заказ по идентификатору.
func (s *Service) Order(ctx context.Context, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	return s.deps.Orders.GetOrder(ctx, orderID)
}

// ErrPaymentNotRetryable — заказ уже оплачен или отменён.
var ErrPaymentNotRetryable = errors.New("order payment cannot be retried")

// RetryPayment запрашивает новую ссылку на оплату заказа.
func (s *Service) RetryPayment(ctx context.Context, orderID string) (string, error) {
	order, err := s.Order(ctx, orderID)
	if err != nil {
		return "", err
	}
	if !order.PaymentStatus.CanRetry() {
		return "", fmt.Errorf("%w: status %s", ErrPaymentNotRetryable, order.PaymentStatus)
	}

	retry, err := s.deps.Orders.RetryPayment(ctx, orderID)
	if err != nil {
		return "", err
	}
	s.logger.WithField("order_id", orderID).Info("payment retry requested")
	return retry.PaymentURL, nil
}

func (s *Service) currentUser() (domain.User, bool) {
	if s.deps.Session == nil {
		return domain.User{}, false
	}
	return s.deps.Session.User()
}

func normalizeAddress(in domain.AddressInput) domain.AddressInput {
	for _, field := range []*string{
		&in.FirstName, &in.LastName, &in.Phone, &in.Address1, &in.Address2,
		&in.City, &in.State, &in.Postcode, &in.Country,
	} {
		*field = strings.TrimSpace(*field)
	}
	return in
}
