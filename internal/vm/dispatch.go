/*
 * pandos - Support-level dispatch: routes a passed-up exception to its handler.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package vm

import (
	"github.com/pandos-os/core/internal/machine"
	"github.com/pandos-os/core/internal/nucleus"
	"github.com/pandos-os/core/internal/support"
)

// GeneralException is called after nucleus.HandleProgramTrap passes a
// syscall or program trap up to GENERALEXCEPT. This is the one point
// in the tree where package vm sits above package support in the call
// graph: it supplies the swap-pool callbacks support.Terminate needs
// and, for a syscall, the byte-addressable Memory view of b's data
// region.
func GeneralException(k *nucleus.Kernel, prid int, b *support.Block, mem support.Memory) {
	invalidateSwap, releaseSwapIfHolder := Hooks(k, prid)
	support.GeneralExceptionHandler(k, prid, b, mem, invalidateSwap, releaseSwapIfHolder)
}

// TLBException is called after nucleus.HandleTLBException passes a TLB
// miss for an unmapped address up to PGFAULTEXCEPT. Only the two
// TLB-invalid causes (load, store) are genuine page faults; any other
// cause reaching this handler path is not something PageFaultHandler
// knows how to service, and the process is terminated instead.
func TLBException(k *nucleus.Kernel, prid int, b *support.Block) {
	cause := b.ExceptionState(support.PgFaultExcept).Cause
	switch cause {
	case machine.ExcTLBInvalidLoad, machine.ExcTLBInvalidStore:
		PageFaultHandler(k, prid, b)
	default:
		invalidateSwap, releaseSwapIfHolder := Hooks(k, prid)
		support.Terminate(k, prid, b, invalidateSwap, releaseSwapIfHolder)
	}
}
