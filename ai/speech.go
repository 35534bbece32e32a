package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
)

// SpeechClient covers text-to-speech and transcription on the OpenAI audio
// endpoints.
type SpeechClient struct {
	client   *openai.Client
	ttsModel string
	voice    string
	sttModel string
}

func NewSpeechClient(client *openai.Client, ttsModel, voice, sttModel string) *SpeechClient {
	return &SpeechClient{
		client:   client,
		ttsModel: ttsModel,
		voice:    voice,
		sttModel: sttModel,
	}
}

// Synthesize returns MP3 audio for text.
func (c *SpeechClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrEmptyInput)
	}

	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          c.ttsModel,
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(c.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, openAIError("speech synthesis", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	return audio, nil
}

// Transcribe returns the text spoken in audio. The recording is sent as
// webm, which is what browsers' MediaRecorder produces.
func (c *SpeechClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: audio is required", ErrEmptyInput)
	}

	out, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "audio.webm", "audio/webm"),
		Model: c.sttModel,
	})
	if err != nil {
		return "", openAIError("transcription", err)
	}
	return strings.TrimSpace(out.Text), nil
}
