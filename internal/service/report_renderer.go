package service

import (
	"bytes"
	"context"
	"path"

	"skillset_backend/internal/model"
	"skillset_backend/internal/util"

	"github.com/go-pdf/fpdf"
)

// Artifact 渲染产物：存储键、访问地址与原始字节（供邮件附件使用）
type Artifact struct {
	Key  string
	URL  string
	Data []byte
}

// ReportRenderer 把标题和已本地化的行渲染成持久化产物；每次调用生成独立的对象
type ReportRenderer interface {
	Render(ctx context.Context, title string, lines []string) (*Artifact, error)
}

// PDFRenderer 用 fpdf 生成 A4 报告并写入存储
type PDFRenderer struct {
	Storage  *StorageService
	Settings *Settings
	Clock    util.Clock
}

func NewPDFRenderer(storage *StorageService, settings *Settings, clock util.Clock) *PDFRenderer {
	return &PDFRenderer{Storage: storage, Settings: settings, Clock: clock}
}

func (r *PDFRenderer) Render(ctx context.Context, title string, lines []string) (*Artifact, error) {
	data, err := r.renderPDF(title, lines)
	if err != nil {
		return nil, err
	}

	key := path.Join(r.Settings.Get().ReportPrefix, r.Clock.Now().Format("2006/01"), model.GenerateUUID()+".pdf")
	url, err := r.Storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), util.MimePDF)
	if err != nil {
		return nil, err
	}
	return &Artifact{Key: key, URL: url, Data: data}, nil
}

func (r *PDFRenderer) renderPDF(title string, lines []string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAutoPageBreak(true, 15)

	family := "Helvetica"
	tr := func(s string) string { return s }
	if font := r.Settings.Get().ReportFontPath; font != "" {
		// 阿拉伯文需要外部 TTF 字体
		pdf.AddUTF8Font("report", "", font)
		family = "report"
	} else {
		tr = pdf.UnicodeTranslatorFromDescriptor("")
	}

	pdf.AddPage()
	pdf.SetFont(family, "", 16)
	pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(family, "", 11)
	for _, line := range lines {
		if line == "" {
			pdf.Ln(3)
			continue
		}
		pdf.MultiCell(0, 6, tr(line), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
