package sandbox

import "fmt"

// ImageType selects the base image family for a task sandbox.
type ImageType string

const (
	ImageDotNet     ImageType = "DotNet"
	ImageJavaScript ImageType = "JavaScript"
	ImageJava       ImageType = "Java"
	ImageGo         ImageType = "Go"
	ImageRust       ImageType = "Rust"
)

// DefaultImageType is used when Create is called without an explicit imageType.
const DefaultImageType = ImageDotNet

// imageMap is bit-exact with spec §4.2.
var imageMap = map[ImageType]string{
	ImageDotNet:     "mcr.microsoft.com/dotnet/sdk:10.0",
	ImageJavaScript: "node:20-bookworm",
	ImageJava:       "eclipse-temurin:21-jdk",
	ImageGo:         "golang:1.22-bookworm",
	ImageRust:       "rust:1-bookworm",
}

// ErrUnknownImageType is the "argument out of range" error spec §4.2/§8 require for an
// unrecognized imageType, naming the parameter.
type ErrUnknownImageType struct {
	Got ImageType
}

func (e *ErrUnknownImageType) Error() string {
	return fmt.Sprintf("sandbox: argument out of range for parameter imageType: %q", e.Got)
}

// ResolveImage maps an ImageType to its concrete image reference.
func ResolveImage(t ImageType) (string, error) {
	img, ok := imageMap[t]
	if !ok {
		return "", &ErrUnknownImageType{Got: t}
	}
	return img, nil
}
