package fatfs

// File type bits used when translating a FAT attribute byte into an
// os.FileMode. FAT has no executable, setuid, or sticky bits, and no device
// nodes beyond what AttrDevice loosely implies, so only the handful that
// matter for IsDir()/IsRegular() classification are kept.
const (
	S_IFREG = 0o100000
	S_IFDIR = 0o040000
	S_IFCHR = 0o020000
)

const S_IRWXU = 0o700
const S_IRWXG = 0o070
const S_IRWXO = 0o007
