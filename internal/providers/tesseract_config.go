package providers

const TesseractName = "tesseract"

// TesseractConfig configures the local OCR backend.
type TesseractConfig struct {
	Languages []string
	DPI       int
}
