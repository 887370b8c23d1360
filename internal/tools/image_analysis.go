package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

const imageAnalysisInstruction = "请详细描述这张图像的内容，包括场景、物体、人物、颜色、氛围、构图等所有细节。用中文回答。"

// VisionAnalyzer sends an encoded image to a vision-capable model.
type VisionAnalyzer interface {
	AnalyzeImage(ctx context.Context, base64Image, instruction string) (string, error)
}

// ImageAnalysisTool describes uploaded images via the vision model. Like the
// search tool it returns failures as descriptive strings, never as errors.
type ImageAnalysisTool struct {
	vision VisionAnalyzer
	fs     afero.Fs
}

// NewImageAnalysisTool creates an image analysis tool.
func NewImageAnalysisTool(vision VisionAnalyzer, fs afero.Fs) *ImageAnalysisTool {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &ImageAnalysisTool{
		vision: vision,
		fs:     fs,
	}
}

func (t *ImageAnalysisTool) Name() string {
	return "image_analysis"
}

func (t *ImageAnalysisTool) Description() string {
	return "分析图像内容并返回详细描述。当你需要理解图像中有什么内容时使用"
}

func (t *ImageAnalysisTool) Parameters() []ParameterDef {
	return []ParameterDef{
		{
			Name:        "image_url",
			Type:        "string",
			Description: "图像文件路径",
			Required:    true,
		},
		{
			Name:        "analysis_type",
			Type:        "string",
			Description: "分析类型（默认 general）",
			Required:    false,
		},
	}
}

func (t *ImageAnalysisTool) Execute(args map[string]any) (string, error) {
	path, ok := args["image_url"].(string)
	if !ok || strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("missing required parameter: image_url")
	}
	path = strings.TrimSpace(path)

	exists, err := afero.Exists(t.fs, path)
	if err != nil || !exists {
		return fmt.Sprintf("错误：图像文件不存在 - %s", path), nil
	}

	data, err := afero.ReadFile(t.fs, path)
	if err != nil {
		return fmt.Sprintf("图像分析失败：%v", err), nil
	}

	encoded := base64.StdEncoding.EncodeToString(data)

	description, err := t.vision.AnalyzeImage(context.Background(), encoded, imageAnalysisInstruction)
	if err != nil {
		return fmt.Sprintf("图像分析失败：%v", err), nil
	}

	return fmt.Sprintf("📷 图像分析结果：\n\n%s", description), nil
}
