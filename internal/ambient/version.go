package ambient

// Version is luksipc's release string, surfaced via --version and logged
// once at the start of every run as the first line of every log.
const Version = "2.0.0"

const UserAgent = "luksipc/" + Version
