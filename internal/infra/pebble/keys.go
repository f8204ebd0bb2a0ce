package pebble

import (
	"encoding/binary"

	"quiz-ledger/internal/domain"
)

func be64(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}

func quizKey(quizID string) []byte {
	return append([]byte{prefixQuiz}, quizID...)
}

// currentKey is prefix ++ player ++ quiz id. The player part is fixed
// width, so the quiz id needs no delimiter.
func currentKey(player domain.Address, quizID string) []byte {
	key := make([]byte, 0, 1+domain.AddressLength+len(quizID))
	key = append(key, prefixCurrent)
	key = append(key, player[:]...)
	return append(key, quizID...)
}

func claimKey(player domain.Address, quizID string) []byte {
	key := currentKey(player, quizID)
	key[0] = prefixClaims
	return key
}

func historyKey(seq uint64) []byte {
	return append([]byte{prefixHistory}, be64(seq)...)
}

// quizIndexPrefix length-prefixes the quiz id so that "q1" never matches
// entries for "q10".
func quizIndexPrefix(quizID string) []byte {
	key := make([]byte, 0, 1+binary.MaxVarintLen64+len(quizID))
	key = append(key, prefixQuizIndex)
	key = binary.AppendUvarint(key, uint64(len(quizID)))
	return append(key, quizID...)
}

func quizIndexKey(quizID string, seq uint64) []byte {
	return append(quizIndexPrefix(quizID), be64(seq)...)
}

func playerIndexPrefix(player domain.Address) []byte {
	return append([]byte{prefixPlayerIndex}, player[:]...)
}

func playerIndexKey(player domain.Address, seq uint64) []byte {
	return append(playerIndexPrefix(player), be64(seq)...)
}

func rewardKey(id uint64) []byte {
	return append([]byte{prefixReward}, be64(id)...)
}

func ownerIndexPrefix(owner domain.Address) []byte {
	return append([]byte{prefixOwnerIndex}, owner[:]...)
}

func ownerIndexKey(owner domain.Address, id uint64) []byte {
	return append(ownerIndexPrefix(owner), be64(id)...)
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil when no such key exists.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
