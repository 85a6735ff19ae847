/*
Package dlm implements the download manager: the update session that receives a software
bundle over TCP and installs it into the inactive storage bank.

The wire protocol reuses the GXIP length convention with an operation byte in place of the
packet type:

	u16be length | u8 op | data

Every request is answered with {0, 4, op, status}, status 1 meaning success.

An upload goes through flash-init, any number of flash-write and a final flash-commit. The
staging file lives at <sandbox>/image. Commit hands the file to the Installer, which copies
it into the bank not currently booted, extracts it, optionally runs its install.sh and, only
when the expected executable was produced, rewrites the active-bank pointer file. The
pointer is replaced atomically so an interrupted update never leaves a half-written pointer.
*/
package dlm
