// Package sdapi is a minimal client for sd-webui compatible generation
// services: batch upscaling, img2img generation, and CLIP interrogation.
// Requests are retried with exponential backoff on transport errors, rate
// limiting, and server-side failures; other client errors fail fast.
package sdapi
