package voice

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// lookPath is a package-level var to allow test injection.
var lookPath = exec.LookPath

// cmdPlayback is a running OS process. Stop kills it.
type cmdPlayback struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *cmdPlayback) Stop()                 { p.cancel() }
func (p *cmdPlayback) Done() <-chan struct{} { return p.done }

func startCommand(ctx context.Context, log zerolog.Logger, cleanup func(), name string, args ...string) (Playback, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		cancel()
		if cleanup != nil {
			cleanup()
		}
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	pb := &cmdPlayback{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(pb.done)
		defer cancel()
		if cleanup != nil {
			defer cleanup()
		}
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			log.Debug().Err(err).Str("cmd", name).Str("stderr", stderr.String()).Msg("audio command exited with error")
		}
	}()
	return pb, nil
}

// CommandPlayer plays WAV buffers through the first available OS player.
type CommandPlayer struct {
	bin    string
	logger zerolog.Logger
}

var playerCandidates = []string{"aplay", "paplay", "afplay", "ffplay"}

// NewCommandPlayer finds an audio player on PATH.
func NewCommandPlayer(logger zerolog.Logger) (*CommandPlayer, error) {
	for _, bin := range playerCandidates {
		if _, err := lookPath(bin); err == nil {
			return &CommandPlayer{bin: bin, logger: logger.With().Str("player", bin).Logger()}, nil
		}
	}
	return nil, fmt.Errorf("no audio player found (tried %s)", strings.Join(playerCandidates, ", "))
}

func (p *CommandPlayer) Name() string { return p.bin }

func (p *CommandPlayer) Play(ctx context.Context, wav []byte) (Playback, error) {
	f, err := os.CreateTemp("", "jarbas-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(wav); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	f.Close()

	args := []string{path}
	switch p.bin {
	case "aplay":
		args = []string{"-q", path}
	case "ffplay":
		args = []string{"-nodisp", "-autoexit", "-loglevel", "quiet", path}
	}
	return startCommand(ctx, p.logger, func() { os.Remove(path) }, p.bin, args...)
}

// CommandSpeaker drives espeak-ng, espeak or macOS say.
type CommandSpeaker struct {
	bin    string
	logger zerolog.Logger
}

// NewCommandSpeaker finds a local speech synthesizer on PATH.
func NewCommandSpeaker(logger zerolog.Logger) (*CommandSpeaker, error) {
	candidates := []string{"espeak-ng", "espeak"}
	if runtime.GOOS == "darwin" {
		candidates = append([]string{"say"}, candidates...)
	}
	for _, bin := range candidates {
		if _, err := lookPath(bin); err == nil {
			return &CommandSpeaker{bin: bin, logger: logger.With().Str("speaker", bin).Logger()}, nil
		}
	}
	return nil, fmt.Errorf("%w (tried %s)", ErrNoLocalSpeaker, strings.Join(candidates, ", "))
}

func (s *CommandSpeaker) Name() string { return s.bin }

func (s *CommandSpeaker) Voices(ctx context.Context) ([]Voice, error) {
	var out []byte
	var err error
	if s.bin == "say" {
		out, err = exec.CommandContext(ctx, "say", "-v", "?").Output()
		if err != nil {
			return nil, fmt.Errorf("list voices: %w", err)
		}
		return parseSayVoices(out), nil
	}
	out, err = exec.CommandContext(ctx, s.bin, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	return parseEspeakVoices(out), nil
}

func (s *CommandSpeaker) Speak(ctx context.Context, u Utterance) (Playback, error) {
	return startCommand(ctx, s.logger, nil, s.bin, s.args(u)...)
}

// baseWPM is the words-per-minute both engines use at rate 1.0.
const baseWPM = 175

func (s *CommandSpeaker) args(u Utterance) []string {
	wpm := strconv.Itoa(int(baseWPM * u.Rate))
	if s.bin == "say" {
		args := []string{"-r", wpm}
		if u.Voice != "" {
			args = append(args, "-v", u.Voice)
		}
		return append(args, "--", u.Text)
	}

	voice := u.Voice
	if voice == "" {
		voice = strings.ToLower(u.Language)
	}
	args := []string{"-s", wpm, "-p", strconv.Itoa(int(50 * u.Pitch))}
	if voice != "" {
		args = append(args, "-v", voice)
	}
	return append(args, "--", u.Text)
}

// parseEspeakVoices reads `espeak-ng --voices`:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  pt-br           M  brazil             roa/pt-BR
func parseEspeakVoices(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		f := strings.Fields(sc.Text())
		if len(f) < 5 {
			continue
		}
		voices = append(voices, Voice{ID: f[4], Name: f[3], Language: f[1]})
	}
	return voices
}

var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2,3}_[A-Z0-9]{2,3})\s+#`)

// parseSayVoices reads `say -v ?`:
//
//	Luciana             pt_BR    # Olá, meu nome é Luciana.
func parseSayVoices(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := sayVoiceLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		voices = append(voices, Voice{ID: name, Name: name, Language: m[2]})
	}
	return voices
}
