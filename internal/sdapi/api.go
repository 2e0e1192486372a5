package sdapi

import (
	"context"
	"fmt"
)

// ImagePayload is one base64-encoded image in a batch request.
type ImagePayload struct {
	Data string `json:"data"`
	Name string `json:"name"`
}

// BatchUpscaleRequest drives the extra-batch-images endpoint.
type BatchUpscaleRequest struct {
	ResizeMode      int            `json:"resize_mode"`
	ShowResults     bool           `json:"show_extras_results"`
	UpscalingResize float64        `json:"upscaling_resize"`
	Upscaler1       string         `json:"upscaler_1"`
	Upscaler2       string         `json:"upscaler_2,omitempty"`
	ImageList       []ImagePayload `json:"imageList"`
}

type batchUpscaleResponse struct {
	Images []string `json:"images"`
}

// Img2ImgRequest drives the img2img endpoint. InitImages carries exactly one
// base64-encoded image for the per-image paths used here.
type Img2ImgRequest struct {
	InitImages        []string `json:"init_images"`
	Prompt            string   `json:"prompt"`
	NegativePrompt    string   `json:"negative_prompt,omitempty"`
	Steps             int      `json:"steps"`
	CFGScale          float64  `json:"cfg_scale"`
	SamplerName       string   `json:"sampler_name"`
	Scheduler         string   `json:"scheduler,omitempty"`
	DenoisingStrength float64  `json:"denoising_strength"`
	RestoreFaces      bool     `json:"restore_faces"`
	EnableHR          bool     `json:"enable_hr"`
	HRScale           float64  `json:"hr_scale,omitempty"`
	HRUpscaler        string   `json:"hr_upscaler,omitempty"`
	HRSecondPassSteps int      `json:"hr_second_pass_steps,omitempty"`
}

type img2imgResponse struct {
	Images []string `json:"images"`
}

type interrogateRequest struct {
	Image string `json:"image"`
	Model string `json:"model"`
}

type interrogateResponse struct {
	Caption string `json:"caption"`
}

// UpscaleBatch sends a batch of images for upscaling and returns the
// resulting base64 images in request order.
func (c *Client) UpscaleBatch(ctx context.Context, req BatchUpscaleRequest) ([]string, error) {
	var resp batchUpscaleResponse
	if err := c.postJSON(ctx, endpointExtraBatch, req, &resp); err != nil {
		return nil, err
	}
	return resp.Images, nil
}

// Img2Img runs an image-to-image generation and returns the resulting
// base64 images. The service may append auxiliary images (control maps and
// the like); the first entry is the generated image.
func (c *Client) Img2Img(ctx context.Context, req Img2ImgRequest) ([]string, error) {
	var resp img2imgResponse
	if err := c.postJSON(ctx, endpointImg2Img, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Images) == 0 {
		return nil, fmt.Errorf("%s returned no images", endpointImg2Img)
	}
	return resp.Images, nil
}

// Interrogate asks the service to caption a base64-encoded image with the
// given interrogation model (e.g. "clip").
func (c *Client) Interrogate(ctx context.Context, image, model string) (string, error) {
	var resp interrogateResponse
	req := interrogateRequest{Image: image, Model: model}
	if err := c.postJSON(ctx, endpointInterrogate, req, &resp); err != nil {
		return "", err
	}
	return resp.Caption, nil
}
