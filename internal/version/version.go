package version

// Version is the bootgod release version, set at tag time.
const Version = "0.3.0"
