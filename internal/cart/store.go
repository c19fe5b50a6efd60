package cart

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/events"
	"github.com/newmedica/storefront/internal/metrics"
)

// State — наблюдаемое состояние корзины.
type State struct {
	Cart domain.Cart
	// Loaded — корзина хотя бы раз успешно загружена с backend.
	Loaded  bool
	Loading bool
	// Err — текст последней ошибки; пустая строка, если ошибки нет.
	Err string
}

// Options задаёт параметры Store.
type Options struct {
	Logger    *log.Entry
	Metrics   *metrics.StorefrontMetrics
	Snapshots domain.SnapshotStore
	Events    *events.Recorder
}

// Option настраивает Store.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики операций с корзиной.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithSnapshots включает сохранение корзины между запусками (ключ cart-storage).
func WithSnapshots(store domain.SnapshotStore) Option {
	return func(opts *Options) {
		opts.Snapshots = store
	}
}

// WithEvents включает запись событий корзины в outbox.
func WithEvents(recorder *events.Recorder) Option {
	return func(opts *Options) {
		opts.Events = recorder
	}
}

// Store — клиентское зеркало серверной корзины.
//
// Каждая мутация выполняется как «запрос, затем полная перезагрузка корзины, затем атомарная замена».
// Агрегаты не пересчитываются локально. Ошибка мутации или перезагрузки оставляет прежнюю
// корзину и записывается в State.Err; методы ничего не возвращают.
// При конкурирующих мутациях побеждает перезагрузка, завершившаяся последней.
type Store struct {
	api       domain.CartAPI
	snapshots domain.SnapshotStore
	events    *events.Recorder
	logger    *log.Entry
	metrics   *metrics.StorefrontMetrics

	mu       sync.RWMutex
	state    State
	inFlight int
}

// NewStore создаёт хранилище корзины с пустым состоянием.
func NewStore(api domain.CartAPI, options ...Option) *Store {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-store")
	}

	return &Store{
		api:       api,
		snapshots: opts.Snapshots,
		events:    opts.Events,
		logger:    logger,
		metrics:   opts.Metrics,
		state:     State{Cart: domain.EmptyCart()},
	}
}

// State возвращает копию текущего состояния.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	st.Cart = s.state.Cart.Clone()
	return st
}

// Cart возвращает копию текущей корзины.
func (s *Store) Cart() domain.Cart {
	return s.State().Cart
}

// Err возвращает текст последней ошибки или пустую строку.
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Err
}

// Fetch загружает корзину. Отсутствие корзины на backend даёт пустую корзину без ошибки.
func (s *Store) Fetch(ctx context.Context) {
	s.begin()
	defer s.end()

	cart, err := s.load(ctx)
	if err != nil {
		s.fail(ctx, "fetch", err)
		return
	}
	s.swap(ctx, cart)
	s.metrics.RecordCartOperation("fetch", metrics.ResultOK)
}

// AddItem добавляет товар. Количество < 1 отклоняется до обращения к backend.
func (s *Store) AddItem(ctx context.Context, productID string, quantity int) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		s.reject("add_item", domain.ErrProductIDRequired)
		return
	}
	if err := domain.ValidateQuantity(quantity); err != nil {
		s.reject("add_item", err)
		return
	}

	s.mutate(ctx, "add_item", func(ctx context.Context) error {
		return s.api.AddCartItem(ctx, productID, quantity)
	}, events.TypeCartItemAdded, map[string]any{
		"product_id": productID,
		"quantity":   quantity,
	})
}

// UpdateItemQuantity задаёт количество позиции. Количество < 1 игнорируется и не отправляется.
func (s *Store) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) {
	if quantity < 1 {
		s.metrics.RecordCartOperation("update_item", metrics.ResultSkipped)
		s.logger.WithFields(log.Fields{
			"item_id":  itemID,
			"quantity": quantity,
		}).Debug("ignoring non-positive quantity")
		return
	}
	if strings.TrimSpace(itemID) == "" {
		s.reject("update_item", domain.ErrCartItemIDRequired)
		return
	}

	s.mutate(ctx, "update_item", func(ctx context.Context) error {
		return s.api.UpdateCartItem(ctx, itemID, quantity)
	}, events.TypeCartItemUpdated, map[string]any{
		"item_id":  itemID,
		"quantity": quantity,
	})
}

// RemoveItem удаляет позицию.
func (s *Store) RemoveItem(ctx context.Context, itemID string) {
	if strings.TrimSpace(itemID) == "" {
		s.reject("remove_item", domain.ErrCartItemIDRequired)
		return
	}

	s.mutate(ctx, "remove_item", func(ctx context.Context) error {
		return s.api.RemoveCartItem(ctx, itemID)
	}, events.TypeCartItemRemoved, map[string]any{
		"item_id": itemID,
	})
}

// Clear сбрасывает корзину к пустой только локально, без запроса к backend.
// Используется при выходе пользователя и после подтверждённой оплаты.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.state = State{Cart: domain.EmptyCart()}
	s.mu.Unlock()

	s.persist(ctx, domain.EmptyCart())
	s.metrics.RecordCartOperation("clear", metrics.ResultOK)
}

// Restore поднимает корзину из снимка до первой загрузки с backend.
func (s *Store) Restore(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}

	raw, err := s.snapshots.Load(ctx, domain.SnapshotKeyCart)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return nil
	}
	if err != nil {
		s.metrics.RecordSnapshotOperation("cart.restore", metrics.ResultError)
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.metrics.RecordSnapshotOperation("cart.restore", metrics.ResultError)
		s.logger.WithError(err).Warn("discarding unreadable cart snapshot")
		return nil
	}
	if snap.Cart.Items == nil {
		snap.Cart.Items = []domain.CartItem{}
	}

	s.mu.Lock()
	s.state.Cart = snap.Cart
	s.mu.Unlock()

	s.metrics.RecordSnapshotOperation("cart.restore", metrics.ResultOK)
	return nil
}

func (s *Store) mutate(ctx context.Context, op string, call func(context.Context) error, eventType events.Type, payload map[string]any) {
	s.begin()
	defer s.end()

	if err := call(ctx); err != nil {
		s.fail(ctx, op, err)
		return
	}

	cart, err := s.load(ctx)
	if err != nil {
		s.fail(ctx, op, err)
		return
	}
	s.swap(ctx, cart)
	s.metrics.RecordCartOperation(op, metrics.ResultOK)

	_ = s.events.Record(ctx, eventType, events.AggregateCart, cart.ID, payload)
}

// load читает корзину; 404 нормализуется в пустую корзину.
func (s *Store) load(ctx context.Context) (domain.Cart, error) {
	cart, err := s.api.GetCart(ctx)
	if errors.Is(err, domain.ErrCartNotFound) {
		return domain.EmptyCart(), nil
	}
	if err != nil {
		return domain.Cart{}, err
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart, nil
}

func (s *Store) swap(ctx context.Context, cart domain.Cart) {
	s.mu.Lock()
	s.state.Cart = cart.Clone()
	s.state.Loaded = true
	s.state.Err = ""
	s.mu.Unlock()

	s.persist(ctx, cart)
}

func (s *Store) fail(ctx context.Context, op string, err error) {
	// Отменённый (вытесненный) запрос не считается ошибкой корзины.
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		s.metrics.RecordCartOperation(op, metrics.ResultSkipped)
		s.logger.WithField("op", op).Debug("cart operation cancelled")
		return
	}

	s.mu.Lock()
	s.state.Err = err.Error()
	s.mu.Unlock()

	s.metrics.RecordCartOperation(op, metrics.ResultError)
	s.logger.WithError(err).WithField("op", op).Warn("cart operation failed")
}

func (s *Store) reject(op string, err error) {
	s.mu.Lock()
	s.state.Err = err.Error()
	s.mu.Unlock()
	s.metrics.RecordCartOperation(op, metrics.ResultError)
}

func (s *Store) begin() {
	s.mu.Lock()
	s.inFlight++
	s.state.Loading = true
	s.state.Err = ""
	s.mu.Unlock()
}

func (s *Store) end() {
	s.mu.Lock()
	s.inFlight--
	s.state.Loading = s.inFlight > 0
	s.mu.Unlock()
}

// snapshot — формат снимка cart-storage.
type snapshot struct {
	Cart domain.Cart `json:"cart"`
}

func (s *Store) persist(ctx context.Context, cart domain.Cart) {
	if s.snapshots == nil {
		return
	}

	payload, err := json.Marshal(snapshot{Cart: cart})
	if err == nil {
		err = s.snapshots.Save(ctx, domain.SnapshotKeyCart, payload)
	}
	if err != nil {
		s.metrics.RecordSnapshotOperation("cart.save", metrics.ResultError)
		s.logger.WithError(err).Warn("failed to persist cart snapshot")
		return
	}
	s.metrics.RecordSnapshotOperation("cart.save", metrics.ResultOK)
}
