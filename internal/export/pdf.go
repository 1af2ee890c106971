package export

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/sirupsen/logrus"

	"colorcraft/internal/model"
)

// A4 竖版，单位 mm
const (
	margin      = 20.0
	imageTop    = 25.0
	coverTop    = 70.0
	reservedTop = 60.0
)

var brandBlue = [3]int{14, 165, 233}

// Document 导出结果
type Document struct {
	FileName string
	Pages    int
	Data     []byte
}

var whitespace = regexp.MustCompile(`\s+`)

// FileName <名字>_<主题>_ColoringBook.pdf，空白压缩为下划线
func FileName(childName, theme string) string {
	name := whitespace.ReplaceAllString(strings.TrimSpace(childName), "_")
	th := whitespace.ReplaceAllString(strings.TrimSpace(theme), "_")
	return fmt.Sprintf("%s_%s_ColoringBook.pdf", name, th)
}

// Export 生成PDF：第一页封面，之后每个有图片的内页一页，没有图片的内页直接跳过。
// 调用方保证所有条目都已到达终态。
func Export(book model.BookState) (*Document, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(fmt.Sprintf("%s's %s Adventure", book.ChildName, book.Theme), true)
	pdf.SetCreator("ColorCraft AI", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageWidth, pageHeight := pdf.GetPageSize()
	contentWidth := pageWidth - margin*2
	imgWidth, imgHeight := fitImage(contentWidth, pageHeight)
	xOffset := (pageWidth - imgWidth) / 2

	// 封面
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 24)
	centerText(pdf, 30, tr(book.ChildName+"'s"))
	pdf.SetFontSize(32)
	pdf.SetTextColor(brandBlue[0], brandBlue[1], brandBlue[2])
	centerText(pdf, 45, tr(book.Theme))
	centerText(pdf, 58, "Adventure")

	if book.Cover.ImageData != "" {
		if err := placeImage(pdf, "cover", book.Cover.ImageData, xOffset, coverTop, imgWidth, imgHeight); err != nil {
			logrus.WithError(err).Error("error adding cover image")
		}
	}

	pdf.SetFontSize(12)
	pdf.SetTextColor(100, 100, 100)
	centerText(pdf, pageHeight-10, "Created with ColorCraft AI")

	// 内页
	for index, page := range book.Pages {
		if page.ImageData == "" {
			continue
		}
		pdf.AddPage()

		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(150, 150, 150)
		centerText(pdf, 15, fmt.Sprintf("Page %d", index+1))

		if err := placeImage(pdf, fmt.Sprintf("page-%d", page.ID), page.ImageData, xOffset, imageTop, imgWidth, imgHeight); err != nil {
			logrus.WithError(err).WithField("item_id", page.ID).Error("error adding page image")
		}

		pdf.SetFontSize(12)
		pdf.SetTextColor(50, 50, 50)
		pdf.SetXY(margin, imageTop+imgHeight+10)
		pdf.MultiCell(contentWidth, 6, tr(page.Description), "", "C", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return &Document{
		FileName: FileName(book.ChildName, book.Theme),
		Pages:    pdf.PageCount(),
		Data:     buf.Bytes(),
	}, nil
}

// fitImage 保持 3:4，宽度不超过内容区，高度给上下文字留出空间
func fitImage(contentWidth, pageHeight float64) (float64, float64) {
	h := contentWidth * 4 / 3
	if h > pageHeight-reservedTop {
		h = pageHeight - reservedTop
	}
	return h * 3 / 4, h
}

func centerText(pdf *fpdf.Fpdf, baseline float64, text string) {
	w := pdf.GetStringWidth(text)
	pageWidth, _ := pdf.GetPageSize()
	pdf.Text((pageWidth-w)/2, baseline, text)
}

// placeImage 先校验图片能否解码，避免坏图让整个文档进入错误状态
func placeImage(pdf *fpdf.Fpdf, name, dataURI string, x, y, w, h float64) error {
	raw, imageType, err := decodeDataURI(dataURI)
	if err != nil {
		return err
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	opts := fpdf.ImageOptions{ImageType: imageType, ReadDpi: false}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(raw))
	if err := pdf.Error(); err != nil {
		pdf.ClearError()
		return fmt.Errorf("register %s: %w", name, err)
	}
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	return nil
}

var errBadDataURI = errors.New("invalid image data uri")

// decodeDataURI 解析 data:image/<type>;base64,<payload>
func decodeDataURI(uri string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
		return nil, "", errBadDataURI
	}
	mime := strings.TrimSuffix(strings.TrimPrefix(header, "data:image/"), ";base64")
	var imageType string
	switch strings.ToLower(mime) {
	case "jpeg", "jpg":
		imageType = "JPG"
	case "png":
		imageType = "PNG"
	default:
		return nil, "", fmt.Errorf("unsupported image type %q", mime)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errBadDataURI, err)
	}
	return raw, imageType, nil
}
