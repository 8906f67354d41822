package unitypack

// Encryption variant flags. Which bit marks an encrypted archive depends
// on the engine revision that produced it; the older bit was reassigned to
// FlagBlockInfoNeedPaddingAtStart in later revisions.
const (
	FlagEncryptionOld ArchiveFlags = 0x200
	FlagEncryptionNew ArchiveFlags = 0x400
)

// encryptionFlag returns the bit that marks an encrypted archive for rev,
// or 0 when rev is stripped and no check is possible.
func encryptionFlag(rev Version) ArchiveFlags {
	if rev.IsStripped() {
		return 0
	}
	if rev.Before(Major(2020)) ||
		rev.InRange(Major(2020), Triple(2020, 3, 34)) ||
		rev.InRange(Major(2021), Triple(2021, 3, 2)) ||
		rev.InRange(Major(2022), Triple(2022, 1, 1)) {
		return FlagEncryptionOld
	}
	return FlagEncryptionNew
}

// checkEncryption fails with an *EncryptionError when flags carry the
// encryption bit for rev. specified records whether rev came from the
// caller rather than the archive.
func checkEncryption(flags ArchiveFlags, rev Version, specified bool) error {
	bit := encryptionFlag(rev)
	if bit == 0 || flags&bit == 0 {
		return nil
	}
	return &EncryptionError{Specified: specified, Revision: rev}
}
