// Package audio captures caller PCM audio and hands it to recognition in fixed-size blocks.
package audio
