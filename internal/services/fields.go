package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/Lllllllleong/kelurahandocs/internal/models"
	"github.com/Lllllllleong/kelurahandocs/internal/render"
)

// DefaultKelurahan fills the kelurahan field when the form leaves it empty.
const DefaultKelurahan = "Cibodas"

var indonesianMonths = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

var romanMonths = [...]string{"I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX", "X", "XI", "XII"}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000Z",
	"02-01-2006",
	"02/01/2006",
}

var shdkAbbreviations = map[string]string{
	"Kepala Keluarga": "KEP-KELG",
	"Suami":           "SUAMI",
	"Istri":           "ISTRI",
	"Anak":            "ANAK",
	"Menantu":         "MENANTU",
	"Cucu":            "CUCU",
	"Orang Tua":       "ORTU",
	"Mertua":          "MERTUA",
	"Famili Lain":     "FAMILI LAIN",
	"Pembantu":        "PEMBANTU",
}

// LongDate formats t as "2 Januari 2025".
func LongDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), indonesianMonths[t.Month()-1], t.Year())
}

// RomanMonth returns the month of t in Roman numerals, used in letter numbers.
func RomanMonth(t time.Time) string {
	return romanMonths[t.Month()-1]
}

// ParseDate accepts the date encodings the form layer sends.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate turns a form date into a long Indonesian date. Empty input gives ""; unparsable
// input is returned unchanged.
func FormatDate(s string) string {
	t, ok := ParseDate(s)
	if !ok {
		return strings.TrimSpace(s)
	}
	return LongDate(t)
}

// SignerHeader returns the header line above the signature and the position line below it.
// The lurah signs directly; anyone else signs on their behalf.
func SignerHeader(position string) (header, detail string) {
	if strings.EqualFold(strings.TrimSpace(position), "lurah") {
		return "LURAH", ""
	}
	return "a.n LURAH", strings.TrimSpace(position)
}

// ShdkAbbreviation shortens a family relationship (status hubungan dalam keluarga).
func ShdkAbbreviation(shdk string) string {
	shdk = strings.TrimSpace(shdk)
	if abbr, ok := shdkAbbreviations[shdk]; ok {
		return abbr
	}
	return strings.ToUpper(shdk)
}

// UpperOr upper-cases s, or def when s is empty.
func UpperOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		s = def
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// AddressFields names the form keys that make up an address line.
type AddressFields struct {
	Street, RT, RW string
	Parts          []string
}

var residentAddress = AddressFields{
	Street: "alamat", RT: "rt", RW: "rw",
	Parts: []string{"kelurahan", "kecamatan", "kota_kabupaten"},
}

// Line renders "street, RT x/RW y, part, part". Empty forms give "".
func (a AddressFields) Line(f models.FormData) string {
	street := f.String(a.Street)
	if street == "" {
		return ""
	}
	parts := []string{street}
	if a.RT != "" || a.RW != "" {
		parts = append(parts, fmt.Sprintf("RT %s/RW %s", f.String(a.RT), f.String(a.RW)))
	}
	for _, k := range a.Parts {
		if v := f.String(k); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// RosterSpec maps a list-of-records form field onto newline-joined template columns.
type RosterSpec struct {
	Field   string
	Number  string
	Columns map[string]string // template key -> record key
	Shdk    string            // template key whose values are abbreviated
}

func (r RosterSpec) apply(f models.FormData, v render.Values) {
	records := f.Records(r.Field)
	if len(records) == 0 {
		return
	}
	numbers := make([]string, len(records))
	for i := range records {
		numbers[i] = fmt.Sprint(i + 1)
	}
	if r.Number != "" {
		v[r.Number] = numbers
	}
	for key, field := range r.Columns {
		col := make([]string, len(records))
		for i, rec := range records {
			s := strings.TrimSpace(render.Flatten(rec[field]))
			if key == r.Shdk {
				s = ShdkAbbreviation(s)
			}
			col[i] = s
		}
		v[key] = col
	}
}

// unitContext is the organizational unit resolved during validation, if any.
type unitContext struct {
	ID      *int64
	Address string
}

// templateValues builds the placeholder map for one output of dt.
func templateValues(dt *DocumentType, spec *OutputSpec, f models.FormData, unit unitContext, now time.Time) render.Values {
	v := make(render.Values, len(f)+16)
	for k, val := range f {
		v[k] = val
	}

	letterDate := now
	if dt.LetterDateField != "" {
		if t, ok := ParseDate(f.String(dt.LetterDateField)); ok {
			letterDate = t
		}
	}
	v["tanggal_surat"] = LongDate(letterDate)
	v["tahun_surat"] = fmt.Sprint(letterDate.Year())
	v["bulan_romawi"] = RomanMonth(letterDate)
	v["nomor_surat"] = f.String("nomor_surat")

	for _, key := range dt.DateFields {
		v[key] = FormatDate(f.String(key))
	}
	for key, def := range dt.Defaults {
		v[key] = f.StringOr(key, def)
	}
	for key, def := range dt.UpperDefaults {
		v[key] = UpperOr(f.String(key), def)
	}
	// An empty alias source keeps whatever the form sent under the template key.
	for tmplKey, formKey := range dt.Aliases {
		if val := f.String(formKey); val != "" {
			v[tmplKey] = val
		} else if _, ok := v[tmplKey]; !ok {
			v[tmplKey] = ""
		}
	}
	v["kelurahan"] = UpperOr(f.String("kelurahan"), DefaultKelurahan)

	addr := f.String("alamat_kelurahan")
	if unit.Address != "" {
		addr = unit.Address
	}
	v["alamat_kelurahan"] = addr

	if dt.PengantarRT {
		if rt := f.String("pengantar_rt"); rt != "" {
			v["pengantar_rt"] = "Nomor: " + rt
		} else {
			v["pengantar_rt"] = ""
		}
	}
	if dt.RequiresSigner {
		header, detail := SignerHeader(f.String("jabatan"))
		v["jabatan"] = header
		v["jabatan_detail"] = detail
	}
	if dt.Roster != nil {
		dt.Roster.apply(f, v)
	}
	return v
}

// archiveDetail keys that already have their own columns.
var promotedKeys = map[string]struct{}{
	"nomor_surat":  {},
	"nama_pejabat": {}, "nip_pejabat": {}, "jabatan": {}, "pejabat_id": {},
	"alamat_kelurahan": {},
}

// archiveDetail copies the form without the promoted columns. A single-key subject name and the
// NIK have their own columns; names joined from several keys stay in the detail.
func archiveDetail(dt *DocumentType, f models.FormData) map[string]any {
	names, nik := dt.subjectKeys()
	out := make(map[string]any, len(f))
	for k, v := range f {
		if _, skip := promotedKeys[k]; skip {
			continue
		}
		if k == nik || (len(names) == 1 && k == names[0]) {
			continue
		}
		out[k] = v
	}
	return out
}
