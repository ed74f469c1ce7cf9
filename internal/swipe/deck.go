package swipe

import "sync"

// Deck: очередь карточек кандидатов. Жест приходит через Handle, решение принимает onSwipe.
type Deck struct {
	mu      sync.Mutex
	cards   []string
	onSwipe func(userID string, dir Direction)
}

func NewDeck(onSwipe func(userID string, dir Direction)) *Deck {
	return &Deck{onSwipe: onSwipe}
}

// Push добавляет кандидатов в конец очереди.
func (d *Deck) Push(userIDs ...string) {
	d.mu.Lock()
	d.cards = append(d.cards, userIDs...)
	d.mu.Unlock()
}

// Top: текущая карточка.
func (d *Deck) Top() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.cards) == 0 {
		return "", false
	}
	return d.cards[0], true
}

// Mount привязывает колоду к h. Вызовите возвращённую функцию при размонтировании.
func (d *Deck) Mount(h *Handle) (unmount func()) {
	return h.Bind(d.swipe)
}

func (d *Deck) swipe(dir Direction) {
	d.mu.Lock()
	if len(d.cards) == 0 {
		d.mu.Unlock()
		return
	}
	top := d.cards[0]
	d.cards = d.cards[1:]
	d.mu.Unlock()
	if d.onSwipe != nil {
		d.onSwipe(top, dir)
	}
}
