package efs2

// Reed-Solomon arithmetic over GF(2^10), matching the parameters the
// Qualcomm RS ECC engine uses: primitive polynomial 0x409, generator
// element 2, first consecutive root (fcr) 1, 8 parity symbols over a
// 1015-symbol message (1023 = 2^10-1 total codeword length). No
// ecosystem Reed-Solomon package operates over a 10-bit symbol field
// with this primitive polynomial (klauspost/reedsolomon and similar
// packages are byte-oriented GF(2^8) erasure coders with a different
// API entirely), so the field and codec are both hand-rolled here;
// see DESIGN.md.

const (
	gfFieldCharac = 1023 // 2^10 - 1
	gfPrimPoly    = 0x409
	rsNsym        = 8
	rsFcr         = 1
	rsGenerator   = 2
	rsMsgSymbols  = 1015
)

var (
	gfExp [gfFieldCharac * 2]int
	gfLog [gfFieldCharac + 1]int
)

func init() {
	x := 1
	for i := 0; i < gfFieldCharac; i++ {
		gfExp[i] = x
		gfLog[x] = i
		x <<= 1
		if x&(1<<10) != 0 {
			x ^= gfPrimPoly
		}
	}
	for i := gfFieldCharac; i < gfFieldCharac*2; i++ {
		gfExp[i] = gfExp[i-gfFieldCharac]
	}
}

func gfMul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[gfLog[a]+gfLog[b]]
}

func gfDiv(a, b int) int {
	if a == 0 {
		return 0
	}
	return gfExp[gfLog[a]-gfLog[b]+gfFieldCharac]
}

func gfPow(x, power int) int {
	p := gfLog[x] * power
	p %= gfFieldCharac
	if p < 0 {
		p += gfFieldCharac
	}
	return gfExp[p]
}

func gfInverse(x int) int {
	return gfExp[gfFieldCharac-gfLog[x]]
}

func gfPolyScale(p []int, x int) []int {
	out := make([]int, len(p))
	for i, c := range p {
		out[i] = gfMul(c, x)
	}
	return out
}

func gfPolyAdd(p, q []int) []int {
	n := len(p)
	if len(q) > n {
		n = len(q)
	}
	out := make([]int, n)
	for i := 0; i < len(p); i++ {
		out[i+n-len(p)] = p[i]
	}
	for i := 0; i < len(q); i++ {
		out[i+n-len(q)] ^= q[i]
	}
	return out
}

func gfPolyMul(p, q []int) []int {
	out := make([]int, len(p)+len(q)-1)
	for j, qc := range q {
		if qc == 0 {
			continue
		}
		for i, pc := range p {
			out[i+j] ^= gfMul(pc, qc)
		}
	}
	return out
}

func gfPolyEval(poly []int, x int) int {
	y := poly[0]
	for i := 1; i < len(poly); i++ {
		y = gfMul(y, x) ^ poly[i]
	}
	return y
}

// gfPolyDiv performs synthetic division used by the error-evaluator
// step of the RS decoder.
func gfPolyDiv(dividend, divisor []int) (quot, rem []int) {
	out := make([]int, len(dividend))
	copy(out, dividend)
	for i := 0; i < len(dividend)-(len(divisor)-1); i++ {
		coef := out[i]
		if coef == 0 {
			continue
		}
		for j := 1; j < len(divisor); j++ {
			if divisor[j] != 0 {
				out[i+j] ^= gfMul(divisor[j], coef)
			}
		}
	}
	sep := len(dividend) - (len(divisor) - 1)
	return out[:sep], out[sep:]
}

// rsGeneratorPoly builds g(x) = prod_{i=0}^{nsym-1} (x - alpha^(fcr+i)).
func rsGeneratorPoly(nsym int) []int {
	g := []int{1}
	for i := 0; i < nsym; i++ {
		g = gfPolyMul(g, []int{1, gfPow(rsGenerator, i+rsFcr)})
	}
	return g
}

var rsGen = rsGeneratorPoly(rsNsym)

// rsEncode returns the nsym parity symbols for a message of exactly
// rsMsgSymbols 10-bit symbols.
func rsEncode(msg []int) []int {
	lgen := make([]int, len(rsGen))
	for i, c := range rsGen {
		lgen[i] = gfLog[c]
	}

	out := make([]int, len(msg)+len(rsGen)-1)
	copy(out, msg)

	for i := 0; i < len(msg); i++ {
		coef := out[i]
		if coef == 0 {
			continue
		}
		lcoef := gfLog[coef]
		for j := 1; j < len(rsGen); j++ {
			out[i+j] ^= gfExp[lcoef+lgen[j]]
		}
	}

	copy(out, msg)
	return out[len(msg):]
}

func rsCalcSyndromes(msg []int, nsym int) []int {
	synd := make([]int, nsym+1)
	for i := 0; i < nsym; i++ {
		synd[i+1] = gfPolyEval(msg, gfPow(rsGenerator, i+rsFcr))
	}
	return synd
}

func rsFindErrorLocator(synd []int, nsym int) ([]int, error) {
	errLoc := []int{1}
	oldLoc := []int{1}

	// synd carries a leading zero pad (see rsCalcSyndromes), so the
	// real syndrome values start at index 1.
	for i := 0; i < nsym; i++ {
		k := i + 1
		delta := synd[k]
		for j := 1; j < len(errLoc); j++ {
			delta ^= gfMul(errLoc[len(errLoc)-1-j], synd[k-j])
		}
		oldLoc = append(oldLoc, 0)

		if delta != 0 {
			if len(oldLoc) > len(errLoc) {
				newLoc := gfPolyScale(oldLoc, delta)
				oldLoc = gfPolyScale(errLoc, gfInverse(delta))
				errLoc = newLoc
			}
			errLoc = gfPolyAdd(errLoc, gfPolyScale(oldLoc, delta))
		}
	}

	// drop leading zero coefficients
	start := 0
	for start < len(errLoc) && errLoc[start] == 0 {
		start++
	}
	errLoc = errLoc[start:]

	errs := len(errLoc) - 1
	if errs*2 > nsym {
		return nil, ErrEccUncorrectable
	}
	return errLoc, nil
}

func rsFindErrors(errLoc []int, nmess int) ([]int, error) {
	errs := len(errLoc) - 1
	var errPos []int
	// reverse errLoc once (Chien search evaluates the reciprocal polynomial)
	rev := make([]int, len(errLoc))
	for i, c := range errLoc {
		rev[len(errLoc)-1-i] = c
	}
	for i := 0; i < nmess; i++ {
		if gfPolyEval(rev, gfPow(rsGenerator, i)) == 0 {
			errPos = append(errPos, nmess-1-i)
		}
	}
	if len(errPos) != errs {
		return nil, ErrEccUncorrectable
	}
	return errPos, nil
}

func rsFindErrataLocator(ePos []int) []int {
	loc := []int{1}
	for _, i := range ePos {
		loc = gfPolyMul(loc, gfPolyAdd([]int{1}, []int{gfPow(rsGenerator, i), 0}))
	}
	return loc
}

func rsFindErrorEvaluator(synd, errLoc []int, nsym int) []int {
	divisor := make([]int, nsym+2)
	divisor[0] = 1
	_, rem := gfPolyDiv(gfPolyMul(synd, errLoc), divisor)
	return rem
}

func rsCorrectErrata(msgIn []int, synd []int, errPos []int) ([]int, error) {
	coefPos := make([]int, len(errPos))
	for i, p := range errPos {
		coefPos[i] = len(msgIn) - 1 - p
	}
	errLoc := rsFindErrataLocator(coefPos)

	revSynd := make([]int, len(synd))
	for i, c := range synd {
		revSynd[len(synd)-1-i] = c
	}
	errEvalRev := rsFindErrorEvaluator(revSynd, errLoc, len(errLoc)-1)
	errEval := make([]int, len(errEvalRev))
	for i, c := range errEvalRev {
		errEval[len(errEvalRev)-1-i] = c
	}

	x := make([]int, len(coefPos))
	for i, cp := range coefPos {
		l := gfFieldCharac - cp
		x[i] = gfPow(rsGenerator, -l)
	}

	e := make([]int, len(msgIn))
	for i, xi := range x {
		xiInv := gfInverse(xi)

		errLocPrime := 1
		for j, xj := range x {
			if j != i {
				errLocPrime = gfMul(errLocPrime, 1^gfMul(xiInv, xj))
			}
		}
		if errLocPrime == 0 {
			return nil, ErrEccUncorrectable
		}

		errEvalRevOfInv := make([]int, len(errEval))
		for k, c := range errEval {
			errEvalRevOfInv[len(errEval)-1-k] = c
		}
		y := gfPolyEval(errEvalRevOfInv, xiInv)
		y = gfMul(gfPow(xi, 1-rsFcr), y)

		magnitude := gfDiv(y, errLocPrime)
		e[errPos[i]] = magnitude
	}

	return gfPolyAdd(msgIn, e), nil
}

// rsCorrect decodes a full 1023-symbol codeword (1015 data + 8 parity
// symbols), correcting errors in place and returning the corrected
// data symbols.
func rsCorrect(codeword []int) ([]int, error) {
	msgOut := make([]int, len(codeword))
	copy(msgOut, codeword)

	synd := rsCalcSyndromes(msgOut, rsNsym)
	clean := true
	for _, s := range synd {
		if s != 0 {
			clean = false
			break
		}
	}
	if clean {
		return msgOut[:len(msgOut)-rsNsym], nil
	}

	errLoc, err := rsFindErrorLocator(synd, rsNsym)
	if err != nil {
		return nil, err
	}

	errPos, err := rsFindErrors(errLoc, len(msgOut))
	if err != nil {
		return nil, err
	}

	msgOut, err = rsCorrectErrata(msgOut, synd, errPos)
	if err != nil {
		return nil, err
	}

	synd = rsCalcSyndromes(msgOut, rsNsym)
	for _, s := range synd {
		if s != 0 {
			return nil, ErrEccUncorrectable
		}
	}

	return msgOut[:len(msgOut)-rsNsym], nil
}
