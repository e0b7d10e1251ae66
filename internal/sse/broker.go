// Package sse implements a Server-Sent Events broker for meal and budget updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/macrolog/internal/models"
)

// Meal event kinds.
const (
	MealLogged = "logged"
	MealUndone = "undone"
)

// Event represents an SSE event addressed to one user's streams.
type Event struct {
	UserID string `json:"-"`
	Type   string `json:"type"`
	Data   any    `json:"data"`
}

// MealPayload is the data of meal.* events.
type MealPayload struct {
	MealLogID string    `json:"meal_log_id"`
	MealSlot  string    `json:"meal_slot"`
	EatenAt   time.Time `json:"eaten_at"`
	Kcal      float64   `json:"kcal"`
}

type mealEventReq struct {
	kind   string
	userID string
	meal   MealPayload
	budget models.EnergyBudget
}

type subscription struct {
	userID string
	ch     chan []byte
}

// Broker manages SSE client connections and fans events out to the streams
// of the addressed user.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + per-user budget throttle timestamps). Public methods communicate
// with this loop through channels, so no mutexes are required.
type Broker struct {
	budgetMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	mealEventCh   chan mealEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. budget.updated events are sent at most
// once per budgetThrottle for each user.
func NewBroker(budgetThrottle time.Duration) *Broker {
	if budgetThrottle <= 0 {
		budgetThrottle = 2 * time.Second
	}

	b := &Broker{
		budgetMin:     budgetThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		mealEventCh:   make(chan mealEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	lastBudget := make(map[string]time.Time)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch, userID := range clients {
			if userID != event.UserID {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.userID

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.mealEventCh:
			broadcast(Event{UserID: req.userID, Type: "meal." + req.kind, Data: req.meal})

			now := time.Now()
			if now.Sub(lastBudget[req.userID]) >= b.budgetMin {
				lastBudget[req.userID] = now
				broadcast(Event{UserID: req.userID, Type: "budget.updated", Data: req.budget})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a stream for userID and returns its channel.
func (b *Broker) Subscribe(userID string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{userID: userID, ch: ch}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to the streams of event.UserID.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishMealEvent publishes meal.<kind> and a throttled budget.updated event.
func (b *Broker) PublishMealEvent(kind, userID string, meal *models.MealLogRecord, budget models.EnergyBudget) {
	if b.closed.Load() || meal == nil {
		return
	}
	req := mealEventReq{
		kind:   kind,
		userID: userID,
		meal: MealPayload{
			MealLogID: meal.ID,
			MealSlot:  meal.MealSlot,
			EatenAt:   meal.EatenAt,
			Kcal:      meal.Totals.Kcal,
		},
		budget: budget,
	}
	select {
	case b.mealEventCh <- req:
	case <-b.stopped:
	}
}

// Stream serves the SSE stream of userID until the request ends or the
// broker closes.
func (b *Broker) Stream(w http.ResponseWriter, r *http.Request, userID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(userID)
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
