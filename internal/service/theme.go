package service

import (
	"github.com/rs/zerolog/log"

	"ddpcore/internal/observable"
	"ddpcore/internal/prefs"
)

const (
	ThemeKey   = "theme"
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// ThemeStore is the persisted dark/light flag. The default is light.
type ThemeStore struct {
	store prefs.Store
	dark  *observable.Value[bool]
}

func NewThemeStore(store prefs.Store) *ThemeStore {
	t := &ThemeStore{store: store, dark: observable.New(false)}
	t.Load()
	return t
}

// Load re-reads the stored theme.
func (t *ThemeStore) Load() {
	v, ok := t.store.Get(ThemeKey)
	t.dark.Set(ok && v == ThemeDark)
}

func (t *ThemeStore) IsDark() bool {
	return t.dark.Get()
}

// Toggle flips the theme and returns the new value. A failed write is logged;
// the in-memory value flips anyway.
func (t *ThemeStore) Toggle() bool {
	dark := !t.dark.Get()
	t.SetDark(dark)
	return dark
}

func (t *ThemeStore) SetDark(dark bool) {
	value := ThemeLight
	if dark {
		value = ThemeDark
	}
	if err := t.store.Set(ThemeKey, value); err != nil {
		log.Warn().Err(err).Str("theme", value).Msg("Theme preference not saved")
	}
	t.dark.Set(dark)
}

func (t *ThemeStore) Subscribe(fn func(bool)) func() {
	return t.dark.Subscribe(fn)
}
