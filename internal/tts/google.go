package tts

import (
	"context"
	"fmt"
	"math"

	gctts "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

// basePitchHz approximates the speaking fundamental used to convert Hz deltas
// into the semitone offsets Cloud Text-to-Speech accepts.
const basePitchHz = 120.0

type googleSynth struct {
	client   *gctts.Client
	language string
}

// NewGoogleSynth creates a Cloud Text-to-Speech backend using application
// default credentials.
func NewGoogleSynth(ctx context.Context, language string) (*googleSynth, error) {
	client, err := gctts.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create google tts client: %w", err)
	}
	return &googleSynth{client: client, language: language}, nil
}

func (g *googleSynth) Name() string { return "google" }

func (g *googleSynth) Close() error { return g.client.Close() }

func (g *googleSynth) Synthesize(ctx context.Context, req SynthRequest) (SynthResult, error) {
	if req.Text == "" {
		return SynthResult{}, ErrEmptyText
	}
	speakingRate, pitch, gain := googleAudioParams(req)
	resp, err := g.client.SynthesizeSpeech(ctx, &ttspb.SynthesizeSpeechRequest{
		Input: &ttspb.SynthesisInput{InputSource: &ttspb.SynthesisInput_Text{Text: req.Text}},
		Voice: &ttspb.VoiceSelectionParams{
			LanguageCode: g.language,
			Name:         req.Voice,
		},
		AudioConfig: &ttspb.AudioConfig{
			AudioEncoding: ttspb.AudioEncoding_MP3,
			SpeakingRate:  speakingRate,
			Pitch:         pitch,
			VolumeGainDb:  gain,
		},
	})
	if err != nil {
		return SynthResult{}, fmt.Errorf("google synthesize: %w", err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return SynthResult{}, ErrEmptyAudio
	}
	return SynthResult{Audio: resp.GetAudioContent(), Format: "mp3"}, nil
}

// googleAudioParams converts profile deltas into speaking rate multiplier,
// pitch in semitones and volume gain in dB.
func googleAudioParams(req SynthRequest) (float64, float64, float64) {
	p := req.Profile
	rate := 1 + float64(p.RatePercent)/100
	pitch := 12 * math.Log2((basePitchHz+float64(p.PitchHz))/basePitchHz)
	gain := 20 * math.Log10(1+float64(p.VolumePercent)/100)
	return rate, pitch, gain
}
