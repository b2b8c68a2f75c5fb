//go:build linux

package rawsock

import "fmt"

// ringGeometry derives TPacket ring parameters from a memory budget.
// PACKET_MMAP wants the frame size aligned to TPACKET_ALIGNMENT, the
// block size a multiple of both the page size and the frame size, and
// block size * block count close to the requested budget.
func ringGeometry(budgetMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const alignment = 16
	const tpacketHdrLen = 52

	if budgetMB <= 0 {
		return 0, 0, 0, fmt.Errorf("ring budget must be positive, got %d MB", budgetMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snap length must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%alignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d",
			alignment, pageSize)
	}

	frameSize = (tpacketHdrLen + snapLen + alignment - 1) / alignment * alignment

	blockSize = lcm(pageSize, frameSize)
	const maxBlockSize = 4 * 1024 * 1024
	if blockSize < frameSize {
		blockSize = frameSize
	}
	if blockSize > maxBlockSize {
		blockSize = maxBlockSize / pageSize * pageSize
	}
	if blockSize%frameSize != 0 {
		frames := blockSize / frameSize
		if frames < 1 {
			frames = 1
		}
		blockSize = (frames*frameSize + pageSize - 1) / pageSize * pageSize
	}

	numBlocks = budgetMB * 1024 * 1024 / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a * b / gcd(a, b)
}
