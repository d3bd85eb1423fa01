// Package voice speaks replies aloud: remote neural voice first, local
// speech synthesis as the fallback. At most one playback is live at a time.
package voice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrVoiceSynthesisFailed marks a remote synthesis failure. It is logged
// and recovered by the local fallback, never returned from Speak.
var ErrVoiceSynthesisFailed = errors.New("voice synthesis failed")

// ErrNoLocalSpeaker is returned when the local fallback is needed but absent.
var ErrNoLocalSpeaker = errors.New("no local speech synthesizer available")

var errSuperseded = errors.New("superseded by a newer request")

// Synthesizer turns text into 16-bit mono PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// SynthesizerDialer builds a Synthesizer for a credential.
type SynthesizerDialer func(ctx context.Context, apiKey string) (Synthesizer, error)

// Playback is a handle on audio that is playing.
type Playback interface {
	Stop()
	Done() <-chan struct{}
}

// Player plays a WAV buffer.
type Player interface {
	Play(ctx context.Context, wav []byte) (Playback, error)
}

// Voice is a local synthesis voice.
type Voice struct {
	ID       string
	Name     string
	Language string
}

// Utterance is one local synthesis request.
type Utterance struct {
	Text     string
	Language string
	Voice    string
	Rate     float64
	Pitch    float64
}

// LocalSpeaker is the platform speech synthesizer.
type LocalSpeaker interface {
	Voices(ctx context.Context) ([]Voice, error)
	Speak(ctx context.Context, u Utterance) (Playback, error)
}

type Config struct {
	Language        string
	PreferredVoices []string
	Rate            float64
	Pitch           float64
	SampleRate      int
}

func DefaultConfig() Config {
	return Config{
		Language:        "pt-BR",
		PreferredVoices: []string{"Google", "Microsoft Francisca", "Luciana"},
		Rate:            1.1,
		Pitch:           1.0,
		SampleRate:      24000,
	}
}

// Adapter owns the single "currently playing" handle.
type Adapter struct {
	cfg    Config
	dial   SynthesizerDialer
	player Player
	local  LocalSpeaker
	log    zerolog.Logger

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	current Playback
	voice   *Voice

	synthMu  sync.Mutex
	synthKey string
	synth    Synthesizer
}

// New builds an adapter. Any collaborator may be nil: without dial or
// player the remote path is skipped, without local there is no fallback.
func New(cfg Config, dial SynthesizerDialer, player Player, local LocalSpeaker, logger zerolog.Logger) *Adapter {
	def := DefaultConfig()
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.Rate <= 0 {
		cfg.Rate = def.Rate
	}
	if cfg.Pitch <= 0 {
		cfg.Pitch = def.Pitch
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	return &Adapter{
		cfg:    cfg,
		dial:   dial,
		player: player,
		local:  local,
		log:    logger.With().Str("component", "voice").Logger(),
	}
}

// Initialize discovers the preferred local voice. It never fails: without
// a usable voice the platform default is used.
func (a *Adapter) Initialize(ctx context.Context) {
	if a.local == nil {
		return
	}
	voices, err := a.local.Voices(ctx)
	if err != nil {
		a.log.Debug().Err(err).Msg("could not list local voices")
		return
	}
	v := pickVoice(voices, a.cfg.Language, a.cfg.PreferredVoices)

	a.mu.Lock()
	a.voice = v
	a.mu.Unlock()
	if v != nil {
		a.log.Debug().Str("voice", v.Name).Str("lang", v.Language).Msg("local voice selected")
	}
}

// SelectedVoice returns the discovered local voice, if any.
func (a *Adapter) SelectedVoice() (Voice, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.voice == nil {
		return Voice{}, false
	}
	return *a.voice, true
}

// Speak cleans text and plays it, replacing whatever was playing. With an
// apiKey the remote voice is tried first; any remote failure falls back to
// local synthesis. A call superseded by Stop or a newer Speak returns nil
// without playing anything.
func (a *Adapter) Speak(ctx context.Context, text, apiKey string) error {
	clean := CleanText(text)
	ctx, gen := a.begin(ctx)
	if clean == "" {
		return nil
	}

	if apiKey != "" && a.dial != nil && a.player != nil {
		err := a.speakRemote(ctx, gen, clean, apiKey)
		if err == nil || errors.Is(err, errSuperseded) {
			return nil
		}
		a.log.Warn().Err(err).Msg("remote voice failed, falling back to local synthesis")
	}

	if !a.isCurrent(gen) {
		return nil
	}
	err := a.speakLocal(ctx, gen, clean)
	if errors.Is(err, errSuperseded) {
		return nil
	}
	return err
}

func (a *Adapter) speakRemote(ctx context.Context, gen uint64, text, apiKey string) error {
	synth, err := a.synthesizer(ctx, apiKey)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVoiceSynthesisFailed, err)
	}
	pcm, err := synth.Synthesize(ctx, text)
	if !a.isCurrent(gen) {
		return errSuperseded
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVoiceSynthesisFailed, err)
	}
	if len(pcm) == 0 {
		return fmt.Errorf("%w: empty audio", ErrVoiceSynthesisFailed)
	}

	pb, err := a.player.Play(ctx, WAV(pcm, a.cfg.SampleRate, 1, 16))
	if err != nil {
		return fmt.Errorf("%w: play: %w", ErrVoiceSynthesisFailed, err)
	}
	return a.adopt(gen, pb)
}

func (a *Adapter) speakLocal(ctx context.Context, gen uint64, text string) error {
	if a.local == nil {
		return ErrNoLocalSpeaker
	}
	u := Utterance{
		Text:     text,
		Language: a.cfg.Language,
		Rate:     a.cfg.Rate,
		Pitch:    a.cfg.Pitch,
	}
	if v, ok := a.SelectedVoice(); ok {
		u.Voice = v.ID
	}
	pb, err := a.local.Speak(ctx, u)
	if err != nil {
		return fmt.Errorf("local speech: %w", err)
	}
	return a.adopt(gen, pb)
}

func (a *Adapter) synthesizer(ctx context.Context, apiKey string) (Synthesizer, error) {
	a.synthMu.Lock()
	defer a.synthMu.Unlock()
	if a.synth != nil && a.synthKey == apiKey {
		return a.synth, nil
	}
	s, err := a.dial(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	a.synth, a.synthKey = s, apiKey
	return s, nil
}

// begin stops current audio and opens a new generation.
func (a *Adapter) begin(ctx context.Context) (context.Context, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.haltLocked()
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	return ctx, a.gen
}

// adopt makes pb the current playback unless gen has been superseded.
func (a *Adapter) adopt(gen uint64, pb Playback) error {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		pb.Stop()
		return errSuperseded
	}
	a.current = pb
	a.mu.Unlock()

	go func() {
		<-pb.Done()
		a.mu.Lock()
		if a.gen == gen {
			a.current = nil
		}
		a.mu.Unlock()
	}()
	return nil
}

func (a *Adapter) isCurrent(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen == gen
}

// Stop halts any playback and invalidates in-flight Speak calls. It is
// safe to call at any time.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.haltLocked()
}

func (a *Adapter) haltLocked() {
	a.gen++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.current != nil {
		a.current.Stop()
		a.current = nil
	}
}

// Wait blocks until the current playback ends or ctx is done.
func (a *Adapter) Wait(ctx context.Context) error {
	a.mu.Lock()
	pb := a.current
	a.mu.Unlock()
	if pb == nil {
		return nil
	}
	select {
	case <-pb.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Playing reports whether audio is currently live.
func (a *Adapter) Playing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil
}

var fencedCode = regexp.MustCompile("(?s)```.*?```")

// CleanText replaces fenced code with a spoken placeholder and strips
// markdown emphasis, heading and inline-code markers.
func CleanText(s string) string {
	s = fencedCode.ReplaceAllString(s, " ...code available on screen... ")
	s = strings.NewReplacer("**", "", "#", "", "`", "").Replace(s)
	return strings.TrimSpace(s)
}

// pickVoice prefers a language match with a preferred name, then any
// language match.
func pickVoice(voices []Voice, lang string, preferred []string) *Voice {
	var fallback *Voice
	for i := range voices {
		v := &voices[i]
		if !sameLanguage(v.Language, lang) {
			continue
		}
		for _, p := range preferred {
			if p != "" && strings.Contains(strings.ToLower(v.Name), strings.ToLower(p)) {
				return v
			}
		}
		if fallback == nil {
			fallback = v
		}
	}
	return fallback
}

func sameLanguage(a, b string) bool {
	norm := func(s string) string { return strings.ToLower(strings.ReplaceAll(s, "_", "-")) }
	a, b = norm(a), norm(b)
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasPrefix(a, b+"-") || strings.HasPrefix(b, a+"-")
}
