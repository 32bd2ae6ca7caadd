// Package protocol defines the request/response types of the docs REST API.
package protocol

// Error types reported by the backend in ErrorResponse.Type.
const (
	ErrValidation              = "ValidationError"
	ErrAlreadyExistingUsername = "AlreadyExistingUsername"
	ErrRegistrationPending     = "RegistrationPending"
	ErrRegistrationNotFound    = "RegistrationNotFound"
	ErrAlreadyProcessed        = "AlreadyProcessed"
	ErrForbidden               = "ForbiddenError"
)

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StatusResponse is the {"status":"ok"} body returned by write endpoints.
type StatusResponse struct {
	Status string `json:"status"`
}

// File is an entry of a document's file list or a file's version history.
type File struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	MimeType   string `json:"mimetype"`
	DocumentID string `json:"document_id,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Version    int    `json:"version,omitempty"`
	CreateDate int64  `json:"create_date,omitempty"`
}

// FileListResponse is returned by GET file/list and GET file/{id}/versions.
type FileListResponse struct {
	Files []File `json:"files"`
}

// ConfigResponse is returned by GET app/config.
type ConfigResponse struct {
	Value string `json:"value"`
}

// Language is a translation language offered by the backend.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// LanguagesResponse is returned by GET file/translate/languages.
type LanguagesResponse struct {
	Languages []Language `json:"languages"`
}

// TranslateStartResponse is returned by POST file/translate/start.
type TranslateStartResponse struct {
	Status     string `json:"status"`
	FlowNumber string `json:"flow_number"`
}

// TranslateStatusResponse is returned by GET file/translate/status.
// Status is "ok" when StatusCode/StatusText are meaningful, otherwise
// ErrorCode carries the translation provider's code.
type TranslateStatusResponse struct {
	Status        string `json:"status"`
	StatusCode    int    `json:"status_code"`
	StatusText    string `json:"status_text"`
	StatusMessage string `json:"status_message,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
}

// Registration is a self-registration request awaiting or past review.
type Registration struct {
	ID                 string `json:"id"`
	Username           string `json:"username"`
	Email              string `json:"email"`
	Status             string `json:"status"`
	CreateDate         int64  `json:"create_date"`
	ApprovalDate       int64  `json:"approval_date,omitempty"`
	ApprovedByUsername string `json:"approved_by_username,omitempty"`
	Message            string `json:"message,omitempty"`
}

// RegistrationListResponse is returned by GET user/registration.
type RegistrationListResponse struct {
	Registrations []Registration `json:"registrations"`
	Total         int            `json:"total"`
}

// Registration statuses.
const (
	RegistrationPending  = "PENDING"
	RegistrationApproved = "APPROVED"
	RegistrationRejected = "REJECTED"
)

// Resource paths, relative to the API root.
const (
	PathRegistration       = "user/registration"
	PathLogin              = "user/login"
	PathLogout             = "user/logout"
	PathConfig             = "app/config"
	PathFileList           = "file/list"
	PathTranslateLanguages = "file/translate/languages"
	PathTranslateStart     = "file/translate/start"
	PathTranslateStatus    = "file/translate/status"
	PathTranslateDownload  = "file/translate/download"
)

// FileVersionsPath returns the version history path of a file.
func FileVersionsPath(fileID string) string {
	return "file/" + fileID + "/versions"
}

// FileDataPath returns the binary content path of a file.
func FileDataPath(fileID string) string {
	return "file/" + fileID + "/data"
}

// RegistrationActionPath returns the approve/reject sub-resource of a registration.
func RegistrationActionPath(id, action string) string {
	return PathRegistration + "/" + id + "/" + action
}
