package skiplist

// unlinkPolicy controls what find_preds does when it walks over a
// logically-marked node, per spec.md §4.E.
type unlinkPolicy int

const (
	// assistUnlink physically unlinks marked nodes while traversing.
	assistUnlink unlinkPolicy = iota
	// dontUnlink skips over marked nodes but leaves them linked; used by
	// lookup so read-only traversals never perform a write CAS.
	dontUnlink
	// forceUnlink is reserved: behavior equivalent to assistUnlink plus
	// unconditional removal on an exact match (spec.md §4.E).
	forceUnlink
)

func predIdx(level int) int { return level * 2 }
func currIdx(level int) int { return level*2 + 1 }

// findPreds scans top-down from topLevel-1 to 0, recording, at each level,
// the last node strictly before key (preds[level]) and the first node not
// strictly before key (succs[level]), physically unlinking marked nodes
// encountered along the way unless policy is dontUnlink. Grounded verbatim
// on original_source/src/skiplist.c's find_preds.
func (l *List) findPreds(tid int, key Interval, topLevel int, policy unlinkPolicy) (preds, succs [MaxLevels]*node) {
	x := l.head

	for lvl := topLevel - 1; lvl >= 0; lvl-- {
		l.publish(tid, predIdx(lvl), x)
		curr, _ := x.loadLevel(lvl)

		for {
			if curr == nil {
				break
			}
			l.publish(tid, currIdx(lvl), curr)

			xNext, _ := x.loadLevel(lvl)
			if xNext != curr {
				// x's edge at this level changed under us; re-evaluate
				// from x's current successor rather than restarting the
				// whole traversal, since x is still a valid predecessor.
				curr = xNext
				continue
			}

			next, marked := curr.loadLevel(lvl)
			if marked {
				if policy == dontUnlink {
					curr = next
					continue
				}
				if x.casLevel(lvl, curr, false, next, false) {
					if curr.unref() {
						l.retire(tid, curr)
					}
					curr = next
					continue
				}
				curr, _ = x.loadLevel(lvl)
				continue
			}

			if keyCmp(curr.key, key) == relRight {
				x = curr
				l.publish(tid, predIdx(lvl), x)
				curr = next
				continue
			}
			break
		}

		preds[lvl] = x
		succs[lvl] = curr
	}

	return preds, succs
}
