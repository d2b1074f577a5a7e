package domain

import "time"

// Identity is the pseudo-identity presented on behalf of a masked session.
// It is a value: links embed a copy, never a shared reference.
type Identity struct {
	ID            string        `json:"id"`
	NetworkOrigin NetworkOrigin `json:"networkOrigin"`
	Fingerprint   Fingerprint   `json:"fingerprint"`
	Behavior      Behavior      `json:"behavior"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// NetworkOrigin is the origin presented to third parties.
type NetworkOrigin struct {
	Address  string `json:"address"`
	Location string `json:"location"`
	Provider string `json:"provider"`
}

// Fingerprint is consumed by agents only; the registry never interprets it.
type Fingerprint struct {
	UserAgent   string      `json:"userAgent"`
	Languages   []string    `json:"languages"` // preference order
	TimeZone    string      `json:"timeZone"`
	Platform    string      `json:"platform"`
	Screen      Screen      `json:"screen"`
	Hardware    Hardware    `json:"hardware"`
	Geolocation Geolocation `json:"geolocation"`
}

type Screen struct {
	Width      int `json:"width"`
	Height     int `json:"height"`
	ColorDepth int `json:"colorDepth"`
	PixelDepth int `json:"pixelDepth"`
}

type Hardware struct {
	Concurrency int    `json:"concurrency"`
	MemoryGB    int    `json:"memory"`
	GPU         string `json:"gpu"`
}

type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	City      string  `json:"city"`
}

// Behavior is the input pacing agents imitate, in milliseconds (typing and
// mouse) or pixels per step (scrolling).
type Behavior struct {
	TypingSpeed Range `json:"typingSpeed"`
	MouseDelay  Range `json:"mouseDelay"`
	ScrollSpeed Range `json:"scrollSpeed"`
}

type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) valid() bool { return r.Min >= 0 && r.Max >= r.Min && r.Max > 0 }

// Clone returns a deep copy so callers can't alias the language slice.
func (i Identity) Clone() Identity {
	c := i
	if i.Fingerprint.Languages != nil {
		c.Fingerprint.Languages = append([]string(nil), i.Fingerprint.Languages...)
	}
	return c
}

// IsZero reports whether the identity was never generated.
func (i Identity) IsZero() bool {
	return i.ID == ""
}

// IdentityPatch carries partial overrides for the hub's current identity.
// Nil sections are left untouched.
type IdentityPatch struct {
	NetworkOrigin *NetworkOrigin `json:"networkOrigin,omitempty"`
	Fingerprint   *Fingerprint   `json:"fingerprint,omitempty"`
	Behavior      *BehaviorPatch `json:"behavior,omitempty"`
}

// BehaviorPatch replaces whole ranges. Missing or inverted ranges are ignored.
type BehaviorPatch struct {
	TypingSpeed *Range `json:"typingSpeed,omitempty"`
	MouseDelay  *Range `json:"mouseDelay,omitempty"`
	ScrollSpeed *Range `json:"scrollSpeed,omitempty"`
}

// IsEmpty reports whether applying the patch could change anything.
func (p IdentityPatch) IsEmpty() bool {
	return p.NetworkOrigin == nil && p.Fingerprint == nil && p.Behavior == nil
}

// Apply merges non-empty fields of the patch into a copy of base.
func (p IdentityPatch) Apply(base Identity) Identity {
	out := base.Clone()
	if o := p.NetworkOrigin; o != nil {
		if o.Address != "" {
			out.NetworkOrigin.Address = o.Address
		}
		if o.Location != "" {
			out.NetworkOrigin.Location = o.Location
		}
		if o.Provider != "" {
			out.NetworkOrigin.Provider = o.Provider
		}
	}
	if f := p.Fingerprint; f != nil {
		if f.UserAgent != "" {
			out.Fingerprint.UserAgent = f.UserAgent
		}
		if len(f.Languages) > 0 {
			out.Fingerprint.Languages = append([]string(nil), f.Languages...)
		}
		if f.TimeZone != "" {
			out.Fingerprint.TimeZone = f.TimeZone
		}
		if f.Platform != "" {
			out.Fingerprint.Platform = f.Platform
		}
		if f.Screen.Width > 0 && f.Screen.Height > 0 {
			out.Fingerprint.Screen = f.Screen
		}
		if f.Hardware.GPU != "" {
			out.Fingerprint.Hardware.GPU = f.Hardware.GPU
		}
		if f.Hardware.Concurrency > 0 {
			out.Fingerprint.Hardware.Concurrency = f.Hardware.Concurrency
		}
		if f.Hardware.MemoryGB > 0 {
			out.Fingerprint.Hardware.MemoryGB = f.Hardware.MemoryGB
		}
		if f.Geolocation.City != "" {
			out.Fingerprint.Geolocation = f.Geolocation
		}
	}
	if b := p.Behavior; b != nil {
		for _, r := range []struct {
			patch *Range
			dst   *Range
		}{
			{b.TypingSpeed, &out.Behavior.TypingSpeed},
			{b.MouseDelay, &out.Behavior.MouseDelay},
			{b.ScrollSpeed, &out.Behavior.ScrollSpeed},
		} {
			if r.patch != nil && r.patch.valid() {
				*r.dst = *r.patch
			}
		}
	}
	return out
}
