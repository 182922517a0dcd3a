package dsa

import (
	"crypto/dsa"
	"io"
	"math/big"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("dsa: bad parameter constant")
	}
	return n
}

// the 1024-bit DSA-SHA1 group every I2P router uses
var (
	dsap = mustHex("9C05B2AA960D9B97B8931963C9CC9E8C3026E9B8ED92FAD0A69CC886D5BF8015" +
		"FCADAE31A0AD18FAB3F01B00A358DE237655C4964AFAA2B337E96AD316B9FB1C" +
		"C564B5AEC5B69A9FF6C3E4548707FEF8503D91DD8602E867E6D35D2235C1869C" +
		"E2479C3B9D5401DE04E0727FB33D6511285D4CF29538D9E3B6051F5B22CC1C93")
	dsaq = mustHex("A5DFC28FEF4CA1E286744CD8EED9D29D684046B7")
	dsag = mustHex("0C1F4D27D40093B429E962D7223824E0BBC47E7C832A39236FC683AF84889581" +
		"075FF9082ED32353D4374D7301CDA1D23C431F4698599DDA02451824FF369752" +
		"593647CC3DDC197DE985E43D136CDCFC6BD5409CD2F450821142A5E6F8EB1C3A" +
		"B5D0484B8129FCF17BCE4F7F33321C3CB3DBB14A905E7B2B3E93BE4708CBCC82")

	param = dsa.Parameters{P: dsap, Q: dsaq, G: dsag}
)

// generate a dsa keypair
func generateDSA(priv *dsa.PrivateKey, rand io.Reader) error {
	log.Debug("Generating DSA key pair")
	// put our paramters in
	priv.Parameters = param
	// generate the keypair
	err := dsa.GenerateKey(priv, rand)
	if err != nil {
		log.WithError(err).Error("Failed to generate DSA key pair")
	} else {
		log.Debug("DSA key pair generated successfully")
	}
	return err
}

// create i2p dsa public key given its public component
func createDSAPublicKey(Y *big.Int) *dsa.PublicKey {
	return &dsa.PublicKey{
		Parameters: param,
		Y:          Y,
	}
}

// createa i2p dsa private key given its private component
func createDSAPrivkey(X *big.Int) (k *dsa.PrivateKey) {
	if X.Sign() > 0 && X.Cmp(dsaq) == -1 {
		Y := new(big.Int)
		Y.Exp(dsag, X, dsap)
		k = &dsa.PrivateKey{
			PublicKey: dsa.PublicKey{
				Parameters: param,
				Y:          Y,
			},
			X: X,
		}
	} else {
		log.Warn("Failed to create DSA private key: X out of range")
	}
	return
}
