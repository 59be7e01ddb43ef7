package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/yourusername/eventreg-api/internal/domain/entity"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var participantHeaders = []string{"#", "First name", "Last name", "Email", "Registered at", "Verified at"}

func participantRow(i int, r entity.Registration) []string {
	verifiedAt := ""
	if r.VerifiedAt != nil {
		verifiedAt = r.VerifiedAt.UTC().Format(exportTimeLayout)
	}
	return []string{
		strconv.Itoa(i + 1),
		sanitizeForExcel(r.FirstName),
		sanitizeForExcel(r.LastName),
		sanitizeForExcel(r.Email),
		r.CreatedAt.UTC().Format(exportTimeLayout),
		verifiedAt,
	}
}

// WriteParticipantsCSV пишет CSV в UTF-8 с BOM, чтобы Excel распознал кодировку
func WriteParticipantsCSV(w io.Writer, regs []entity.Registration) error {
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(participantHeaders); err != nil {
		return err
	}
	for i, r := range regs {
		if err := writer.Write(participantRow(i, r)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteParticipantsXLSX пишет книгу с одним листом через StreamWriter
func WriteParticipantsXLSX(w io.Writer, regs []entity.Registration) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Participants"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	headers := make([]interface{}, len(participantHeaders))
	for i, h := range participantHeaders {
		headers[i] = h
	}
	if err := sw.SetRow("A1", headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for i, r := range regs {
		var verifiedAt interface{} = ""
		if r.VerifiedAt != nil {
			verifiedAt = r.VerifiedAt.UTC().Format(exportTimeLayout)
		}
		row := []interface{}{
			i + 1,
			sanitizeForExcel(r.FirstName),
			sanitizeForExcel(r.LastName),
			sanitizeForExcel(r.Email),
			r.CreatedAt.UTC().Format(exportTimeLayout),
			verifiedAt,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush stream writer: %w", err)
	}
	return f.Write(w)
}

// ExportFilename формирует имя файла выгрузки без расширения
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("participants_%s", now.Format("2006-01-02"))
}

// sanitizeForExcel экранирует данные для защиты от formula injection в Excel/CSV
func sanitizeForExcel(s string) string {
	if len(s) == 0 {
		return s
	}
	if s[0] == '=' || s[0] == '+' || s[0] == '-' || s[0] == '@' || s[0] == '\t' || s[0] == '\r' {
		return "'" + s
	}
	return s
}
