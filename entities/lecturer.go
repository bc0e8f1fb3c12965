package entities

// LecturerProfile is a named portrait/voice pair living in the portraits
// directory. Naming convention: {name}{imageExt} and {name}_voice{audioExt}.
type LecturerProfile struct {
	Name         string `json:"name"`
	PortraitPath string `json:"portrait"`
	VoicePath    string `json:"voice_reference,omitempty"`
}

// Resolvable reports whether both files of the pair are present.
func (p LecturerProfile) Resolvable() bool {
	return p.PortraitPath != "" && p.VoicePath != ""
}
