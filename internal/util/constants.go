package util

const (
	TimeFormat       = "2006-01-02 15:04:05"
	ReportTimeFormat = "2006-01-02 15:04 UTC"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	MimePDF         = "application/pdf"
	MimeOctetStream = "application/octet-stream"
	MimeCSV         = "text/csv"
)

// 教师上传补救材料允许的扩展名
var AllowedRemediationExtensions = []string{".pdf", ".docx", ".doc", ".pptx", ".ppt", ".png", ".jpg", ".jpeg", ".mp4", ".webm"}
