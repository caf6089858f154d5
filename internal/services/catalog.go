package services

import (
	"sort"
	"strings"

	"github.com/Lllllllleong/kelurahandocs/internal/models"
)

// FailurePolicy decides what an archive failure means for an output.
type FailurePolicy int

const (
	// BestEffortArchive logs a failed archive insert and still returns the document.
	BestEffortArchive FailurePolicy = iota
	// StrictArchive fails the chain when the archive insert fails.
	StrictArchive
)

func (p FailurePolicy) String() string {
	if p == StrictArchive {
		return "strict"
	}
	return "best-effort"
}

// OutputSpec describes one produced document.
type OutputSpec struct {
	Template string
	Category string // storage folder
	Tag      string // document type tag in object names
	Label    string // jenis_dokumen in the archive
	// BundlePrefix names the document inside a multi-document response.
	BundlePrefix string
	// Number is a fixed archive number used instead of the form's nomor_surat.
	Number       string
	NumberSuffix string
	Policy       FailurePolicy
	// SubjectMatter builds the perihal column.
	SubjectMatter func(f models.FormData) string
}

// DocumentType is one catalog entry.
type DocumentType struct {
	Key            string
	Label          string
	Required       []string
	RequiresSigner bool
	// SubjectName lists the form keys naming the subject, joined with " & ". Empty means
	// nama_pemohon. SubjectNIK defaults to nik_pemohon.
	SubjectName  []string
	SubjectNIK   string
	UpperSubject bool
	// NumberFromSubject archives the subject name as the document number.
	NumberFromSubject bool
	// LetterDateField is the form field holding the letter date. Empty means today.
	LetterDateField string
	DateFields      []string
	Defaults        map[string]string
	UpperDefaults   map[string]string
	Aliases         map[string]string
	PengantarRT     bool
	Address         AddressFields
	Roster          *RosterSpec

	Primary   OutputSpec
	Secondary *OutputSpec
}

func (dt *DocumentType) subjectKeys() (names []string, nik string) {
	names, nik = dt.SubjectName, dt.SubjectNIK
	if len(names) == 0 {
		names = []string{"nama_pemohon"}
	}
	if nik == "" {
		nik = "nik_pemohon"
	}
	return names, nik
}

func (dt *DocumentType) subject(f models.FormData) models.Subject {
	keys, nikKey := dt.subjectKeys()
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := f.String(k); v != "" {
			names = append(names, v)
		}
	}
	name := strings.Join(names, " & ")
	if dt.UpperSubject {
		name = strings.ToUpper(name)
	}
	return models.Subject{
		Name:    name,
		NIK:     f.String(nikKey),
		Address: dt.Address.Line(f),
	}
}

// Catalog maps document type keys to their configuration.
type Catalog map[string]*DocumentType

// Lookup returns the document type for key.
func (c Catalog) Lookup(key string) (*DocumentType, bool) {
	dt, ok := c[key]
	return dt, ok
}

// Infos lists the catalog sorted by key.
func (c Catalog) Infos() []models.DocumentTypeInfo {
	out := make([]models.DocumentTypeInfo, 0, len(c))
	for _, dt := range c {
		out = append(out, models.DocumentTypeInfo{
			Key:           dt.Key,
			Label:         dt.Label,
			Category:      dt.Primary.Category,
			HasSecondary:  dt.Secondary != nil,
			StrictArchive: dt.Primary.Policy == StrictArchive,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func fixed(s string) func(models.FormData) string {
	return func(models.FormData) string { return s }
}

func withField(prefix, field, fallback string) func(models.FormData) string {
	return func(f models.FormData) string {
		if v := f.String(field); v != "" {
			return prefix + v
		}
		return fallback
	}
}

// DefaultCatalog returns the letters issued by the kelurahan office.
func DefaultCatalog() Catalog {
	types := []*DocumentType{
		{
			Key:            "sku",
			Label:          "Surat Keterangan Usaha",
			Required:       []string{"nama_pemohon"},
			RequiresSigner: true,
			DateFields:     []string{"tanggal_lahir"},
			Defaults:       map[string]string{"negara": "Indonesia"},
			UpperDefaults:  map[string]string{"kel_usaha": DefaultKelurahan},
			PengantarRT:    true,
			Address:        residentAddress,
			Primary: OutputSpec{
				Template:      "SKU.docx",
				Category:      "sku",
				Tag:           "SKU",
				Label:         "Surat Keterangan Usaha",
				BundlePrefix:  "SKU",
				Policy:        BestEffortArchive,
				SubjectMatter: withField("Surat Keterangan Usaha - ", "nama_usaha", "Surat Keterangan Usaha"),
			},
		},
		{
			Key:            "sktm",
			Label:          "Surat Keterangan Tidak Mampu",
			Required:       []string{"nama_pemohon"},
			RequiresSigner: true,
			DateFields:     []string{"tanggal_lahir"},
			Defaults:       map[string]string{"negara": "Indonesia"},
			Address:        residentAddress,
			Primary: OutputSpec{
				Template:      "SKTM.docx",
				Category:      "sktm",
				Tag:           "SKTM",
				Label:         "SKTM",
				BundlePrefix:  "SKTM",
				Policy:        BestEffortArchive,
				SubjectMatter: withField("Surat Keterangan Tidak Mampu untuk ", "peruntukan", "Surat Keterangan Tidak Mampu"),
			},
		},
		{
			Key:            "umum",
			Label:          "Surat Keterangan Umum",
			Required:       []string{"nama_pemohon"},
			RequiresSigner: true,
			DateFields:     []string{"tanggal_lahir"},
			Defaults:       map[string]string{"negara": "Indonesia"},
			PengantarRT:    true,
			Address:        residentAddress,
			Primary: OutputSpec{
				Template:      "UMUM.docx",
				Category:      "umum",
				Tag:           "Umum",
				Label:         "Surat Keterangan Umum",
				BundlePrefix:  "Umum",
				Policy:        BestEffortArchive,
				SubjectMatter: fixed("Surat Keterangan Umum"),
			},
		},
		{
			Key:            "belum-rumah",
			Label:          "Surat Keterangan Belum Memiliki Rumah",
			Required:       []string{"nama_pemohon"},
			RequiresSigner: true,
			DateFields:     []string{"tanggal_lahir"},
			Defaults:       map[string]string{"negara": "Indonesia"},
			Address:        residentAddress,
			Primary: OutputSpec{
				Template:      "BELUMRUMAH.docx",
				Category:      "belum-rumah",
				Tag:           "BelumRumah",
				Label:         "Belum Memiliki Rumah",
				BundlePrefix:  "BelumRumah",
				Policy:        BestEffortArchive,
				SubjectMatter: withField("Surat Keterangan Belum Memiliki Rumah untuk ", "peruntukan", "Surat Keterangan Belum Memiliki Rumah"),
			},
		},
		{
			Key:        "pengantar-nikah",
			Label:      "Surat Pengantar Nikah (N1)",
			Required:   []string{"nama_pemohon", "nik_pemohon"},
			DateFields: []string{"tanggal_lahir_pemohon", "tanggal_lahir_bapak", "tanggal_lahir_ibu"},
			Defaults:   map[string]string{"negara_pemohon": "Indonesia"},
			UpperDefaults: map[string]string{
				"kelurahan_pemohon": DefaultKelurahan,
				"kecamatan_pemohon": "Tangerang",
			},
			Address: AddressFields{
				Street: "alamat_pemohon", RT: "rt_pemohon", RW: "rw_pemohon",
				Parts: []string{"kelurahan"},
			},
			Primary: OutputSpec{
				Template:      "N1.docx",
				Category:      "pengantar-nikah",
				Tag:           "N1",
				Label:         "Pengantar Nikah",
				BundlePrefix:  "N1",
				Policy:        BestEffortArchive,
				SubjectMatter: fixed("Surat Pengantar Pernikahan"),
			},
			Secondary: &OutputSpec{
				Template:      "PERNYATAANNIKAH.docx",
				Category:      "pengantar-nikah",
				Tag:           "Pernyataan",
				Label:         "Surat Pernyataan Belum Menikah",
				BundlePrefix:  "Pernyataan",
				NumberSuffix:  "-PERNYATAAN",
				Policy:        BestEffortArchive,
				SubjectMatter: fixed("Surat Pernyataan Belum Menikah (Lampiran Pengantar Nikah)"),
			},
		},
		{
			Key:               "pindah-keluar",
			Label:             "Surat Pindah Keluar (F-1.03)",
			Required:          []string{"nama_pemohon"},
			NumberFromSubject: true,
			LetterDateField:   "tanggal_surat",
			Aliases:           map[string]string{"kota/kab_pindah": "kota_kab_pindah"},
			Address: AddressFields{
				Street: "alamat_asal", RT: "rt_asal", RW: "rw_asal",
				Parts: []string{"kel_asal", "kec_asal", "kota_asal"},
			},
			Roster: &RosterSpec{
				Field:  "anggota_keluarga",
				Number: "no_urut_anggota_pindah",
				Columns: map[string]string{
					"nama_anggota_pindah": "nama",
					"nik_anggota_pindah":  "nik",
					"shdk_anggota_pindah": "shdk",
				},
				Shdk: "shdk_anggota_pindah",
			},
			Primary: OutputSpec{
				Template:      "F-103.docx",
				Category:      "pindah-keluar",
				Tag:           "F103",
				Label:         "Surat Pindah Keluar",
				BundlePrefix:  "F103",
				Policy:        StrictArchive,
				SubjectMatter: withField("Surat Pindah Keluar - ", "jenis_permohonan", "Surat Pindah Keluar"),
			},
		},
		{
			Key:          "pengantar-ktp",
			Label:        "Formulir Permohonan KTP (F-1.02)",
			Required:     []string{"nama", "nik", "nomor_kk"},
			SubjectName:  []string{"nama"},
			SubjectNIK:   "nik",
			UpperSubject: true,
			UpperDefaults: map[string]string{
				"nama": "",
			},
			Primary: OutputSpec{
				Template:      "PENGANTARKTP.docx",
				Category:      "pengantar-ktp",
				Tag:           "PengantarKTP",
				Label:         "Formulir KTP",
				BundlePrefix:  "PengantarKTP",
				Number:        "F-1.02",
				Policy:        StrictArchive,
				SubjectMatter: fixed("Formulir Permohonan KTP"),
			},
		},
		{
			Key:            "suami-istri",
			Label:          "Surat Keterangan Suami Istri",
			Required:       []string{"nama_suami", "nama_istri"},
			RequiresSigner: true,
			SubjectName:    []string{"nama_suami", "nama_istri"},
			DateFields:     []string{"tanggal_lahir_suami", "tanggal_lahir_istri", "tanggal_pernikahan"},
			Defaults:       map[string]string{"negara_suami": "Indonesia", "negara_istri": "Indonesia"},
			Aliases:        map[string]string{"kecamatan": "kec_suami", "kota_kabupaten": "kota_suami"},
			PengantarRT:    true,
			Address: AddressFields{
				Street: "alamat_suami", RT: "rt_suami", RW: "rw_suami",
				Parts: []string{"kel_suami", "kec_suami", "kota_suami"},
			},
			Primary: OutputSpec{
				Template:      "KETERANGANSUAMIISTRI.docx",
				Category:      "suami-istri",
				Tag:           "SuamiIstri",
				Label:         "Surat Keterangan Suami Istri",
				BundlePrefix:  "SuamiIstri",
				Policy:        BestEffortArchive,
				SubjectMatter: withField("Surat Keterangan Suami Istri untuk ", "peruntukan", "Surat Keterangan Suami Istri"),
			},
		},
	}

	c := make(Catalog, len(types))
	for _, dt := range types {
		c[dt.Key] = dt
	}
	return c
}
