package service

import (
	"fmt"
	"os"
	"path/filepath"
)

// Python entry points for the model stages. They are written into the
// configured scripts directory at startup and invoked per call.

const marianTranslatePy = `#!/usr/bin/env python3
"""Translate text with a Helsinki-NLP MarianMT model and print JSON."""
import argparse
import json

import torch
from transformers import MarianMTModel, MarianTokenizer


def main():
    parser = argparse.ArgumentParser()
    parser.add_argument("--model", required=True)
    parser.add_argument("--text-file", required=True)
    parser.add_argument("--device", default="cpu")
    args = parser.parse_args()

    with open(args.text_file, encoding="utf-8") as f:
        text = f.read()
    if not text.strip():
        print(json.dumps({"translated_text": ""}))
        return

    tokenizer = MarianTokenizer.from_pretrained(args.model)
    model = MarianMTModel.from_pretrained(args.model).to(args.device)

    inputs = tokenizer(text, return_tensors="pt", padding=True, truncation=True)
    inputs = {k: v.to(args.device) for k, v in inputs.items()}
    with torch.no_grad():
        tokens = model.generate(
            **inputs,
            max_length=512,
            num_beams=4,
            do_sample=False,
            early_stopping=True,
        )
    translated = tokenizer.decode(tokens[0], skip_special_tokens=True)
    print(json.dumps({"translated_text": translated}))


if __name__ == "__main__":
    main()
`

const xttsSpeakPy = `#!/usr/bin/env python3
"""Synthesize speech with Coqui XTTS v2, optionally cloning a reference voice."""
import argparse

from TTS.api import TTS


def main():
    parser = argparse.ArgumentParser()
    parser.add_argument("--text-file", required=True)
    parser.add_argument("--language", required=True)
    parser.add_argument("--output", required=True)
    parser.add_argument("--speaker-wav", default=None)
    parser.add_argument("--device", default="cpu")
    args = parser.parse_args()

    with open(args.text_file, encoding="utf-8") as f:
        text = f.read()

    tts = TTS(
        model_name="tts_models/multilingual/multi-dataset/xtts_v2",
        progress_bar=False,
    ).to(args.device)

    kwargs = {"text": text, "file_path": args.output, "language": args.language}
    if args.speaker_wav:
        kwargs["speaker_wav"] = args.speaker_wav
    tts.tts_to_file(**kwargs)
    print(args.output)


if __name__ == "__main__":
    main()
`

const speakerEmbedPy = `#!/usr/bin/env python3
"""Extract a unit-normalized speaker embedding from reference audio as JSON."""
import argparse
import json

import librosa
import numpy as np


def main():
    parser = argparse.ArgumentParser()
    parser.add_argument("--audio", required=True)
    parser.add_argument("--dim", type=int, default=512)
    args = parser.parse_args()

    audio, sr = librosa.load(args.audio, sr=22050)
    audio, _ = librosa.effects.trim(audio, top_db=20)
    if len(audio) > sr * 30:
        audio = audio[: sr * 30]

    n = args.dim // 2
    mfcc = librosa.feature.mfcc(y=audio, sr=sr, n_mfcc=n)
    vec = np.concatenate([mfcc.mean(axis=1), mfcc.std(axis=1)]).astype(np.float32)
    norm = np.linalg.norm(vec)
    if norm > 0:
        vec = vec / norm
    print(json.dumps({"embedding": vec.tolist(), "dim": int(vec.shape[0])}))


if __name__ == "__main__":
    main()
`

// EnsureScripts writes the embedded scripts into dir. Existing files are
// left untouched so local edits survive restarts.
func EnsureScripts(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	scripts := []struct{ name, content string }{
		{"marian_translate.py", marianTranslatePy},
		{"xtts_speak.py", xttsSpeakPy},
		{"speaker_embed.py", speakerEmbedPy},
	}
	for _, s := range scripts {
		path := filepath.Join(dir, s.name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(s.content), 0o755); err != nil {
			return fmt.Errorf("failed to write %s: %w", s.name, err)
		}
	}
	return nil
}
