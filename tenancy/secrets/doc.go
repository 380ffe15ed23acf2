// Copyright 2025 FluxERP
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package secrets handles credential protection for tenant connection URIs.

Two mechanisms cover the deployment spectrum:

  - Cipher encrypts URIs at rest in the enterprise store. AESCipher
    (AES-256-GCM, hex-encoded 32-byte key) is the production
    implementation; PlaintextCipher exists for development.

  - Manager resolves secretsmanager:// references for deployments that
    keep tenant credentials in AWS Secrets Manager instead of the
    enterprise store. AWSManager caches resolved values for a short TTL
    to keep tenant resolution off the AWS API hot path.

The registry composes both: a stored value beginning with
secretsmanager:// is resolved through the Manager, anything else is
decrypted with the Cipher.
*/
package secrets
